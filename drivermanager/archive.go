package drivermanager

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// ErrBinaryNotInArchive is returned when a downloaded archive doesn't
// contain the driver binary.
var ErrBinaryNotInArchive = errors.New("driver binary not found in archive")

var (
	zipMagic  = []byte("PK\x03\x04")
	gzipMagic = []byte{0x1f, 0x8b}
)

// extractBinary returns the file called binary from the archive named
// name, in any directory. The archive type comes from the leading bytes
// of data, so redirected downloads without an extension still work,
// and from name otherwise. Anything else is taken as the binary itself.
func extractBinary(name string, data []byte, binary string) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, zipMagic), strings.HasSuffix(name, ".zip"):
		return extractZip(data, binary)
	case bytes.HasPrefix(data, gzipMagic),
		strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return extractTarGz(data, binary)
	default:
		return data, nil
	}
}

func extractZip(data []byte, binary string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading zip archive: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || path.Base(f.Name) != binary {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		defer func() { _ = rc.Close() }()

		b, err := io.ReadAll(io.LimitReader(rc, maxDownloadSize))
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", f.Name, err)
		}
		return b, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrBinaryNotInArchive, binary)
}

func extractTarGz(data []byte, binary string) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reading gzip archive: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || path.Base(hdr.Name) != binary {
			continue
		}
		b, err := io.ReadAll(io.LimitReader(tr, maxDownloadSize))
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", hdr.Name, err)
		}
		return b, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrBinaryNotInArchive, binary)
}
