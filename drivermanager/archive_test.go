package drivermanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBinary(t *testing.T) {
	t.Parallel()

	zipData := zipArchive(t, map[string]string{"dir/chromedriver": "bin", "dir/README": "readme"})
	tgzData := tarGzArchive(t, map[string]string{"geckodriver": "gecko"})

	testCases := []struct {
		name    string
		archive string
		data    []byte
		binary  string
		want    string
		wantErr error
	}{
		{"zip", "x.zip", zipData, "chromedriver", "bin", nil},
		{"zip_missing", "x.zip", zipData, "msedgedriver", "", ErrBinaryNotInArchive},
		{"tar_gz", "x.tar.gz", tgzData, "geckodriver", "gecko", nil},
		{"tar_gz_missing", "x.tar.gz", tgzData, "chromedriver", "", ErrBinaryNotInArchive},
		{"plain", "IEDriverServer.exe", []byte("raw"), "IEDriverServer.exe", "raw", nil},
		{"zip_without_extension", "redirect-to", zipData, "chromedriver", "bin", nil},
		{"tar_gz_without_extension", "download", tgzData, "geckodriver", "gecko", nil},
		{"zip_binary_missing_without_extension", "redirect-to", zipData, "geckodriver", "", ErrBinaryNotInArchive},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := extractBinary(tc.archive, tc.data, tc.binary)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}

	_, err := extractBinary("x.zip", []byte("not a zip"), "chromedriver")
	assert.ErrorContains(t, err, "reading zip archive")
}
