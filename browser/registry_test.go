package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/webdriver-launcher/common"
)

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input           string
		wantName        common.BrowserName
		wantBrowserName string
		wantOptionsKey  string
		wantDriver      string
		wantInsecure    bool
	}{
		{
			input: "", wantName: common.Chrome, wantBrowserName: "chrome",
			wantOptionsKey: "goog:chromeOptions", wantDriver: "chromedriver", wantInsecure: true,
		},
		{
			input: "unknown", wantName: common.Chrome, wantBrowserName: "chrome",
			wantOptionsKey: "goog:chromeOptions", wantDriver: "chromedriver", wantInsecure: true,
		},
		{
			input: "edge", wantName: common.Edge, wantBrowserName: "MicrosoftEdge",
			wantOptionsKey: "ms:edgeOptions", wantDriver: "msedgedriver", wantInsecure: true,
		},
		{
			input: "IE", wantName: common.InternetExplorer, wantBrowserName: "internet explorer",
			wantOptionsKey: "se:ieOptions", wantDriver: "IEDriverServer", wantInsecure: false,
		},
		{
			input: "firefox", wantName: common.Firefox, wantBrowserName: "firefox",
			wantOptionsKey: "moz:firefoxOptions", wantDriver: "geckodriver", wantInsecure: true,
		},
		{
			input: "opera", wantName: common.Opera, wantBrowserName: "opera",
			wantOptionsKey: "operaOptions", wantDriver: "operadriver", wantInsecure: true,
		},
	}
	reg := DefaultRegistry()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.wantName.String()+"/"+tt.input, func(t *testing.T) {
			t.Parallel()

			v, name, ok := reg.Lookup(tt.input)
			require.True(t, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantName, v.BrowserType.Name())
			assert.Equal(t, tt.wantDriver, v.Driver.Name())

			caps, err := v.BrowserType.Capabilities(common.NewLaunchOptions())
			require.NoError(t, err)
			assert.Equal(t, tt.wantBrowserName, caps["browserName"])
			assert.Contains(t, caps, tt.wantOptionsKey)
			for _, other := range []string{"goog:chromeOptions", "ms:edgeOptions", "operaOptions", "moz:firefoxOptions", "se:ieOptions"} {
				if other == tt.wantOptionsKey {
					continue
				}
				assert.NotContains(t, caps, other)
			}
			if tt.wantInsecure {
				assert.Equal(t, true, caps["acceptInsecureCerts"])
			} else {
				assert.NotContains(t, caps, "acceptInsecureCerts")
			}
		})
	}
}

func TestRegistryCoversEveryBrowser(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry()
	for _, name := range common.BrowserNames() {
		_, ok := reg[name]
		assert.True(t, ok, "%s has no vendor", name)
	}
	assert.Len(t, reg, len(common.BrowserNames()))
}
