package browser

import (
	"context"

	"github.com/grafana/webdriver-launcher/chromium"
	"github.com/grafana/webdriver-launcher/common"
	"github.com/grafana/webdriver-launcher/drivermanager"
	"github.com/grafana/webdriver-launcher/firefox"
	"github.com/grafana/webdriver-launcher/iexplorer"
)

// Installer sets up the driver binary described by cfg and returns
// its path. drivermanager.Manager implements it.
type Installer interface {
	SetUpDriver(ctx context.Context, cfg drivermanager.Config, version string) (string, error)
}

var _ Installer = &drivermanager.Manager{}

// Vendor is what a Driver needs to start one browser: the browser type
// launching it and the description of its driver binary.
type Vendor struct {
	BrowserType common.BrowserType
	Driver      drivermanager.Config
}

// Registry maps browser names to vendors.
type Registry map[common.BrowserName]Vendor

// DefaultRegistry returns the vendors of every supported browser.
func DefaultRegistry() Registry {
	return Registry{
		common.Chrome: {
			BrowserType: chromium.NewChrome(),
			Driver:      drivermanager.ChromeConfig{},
		},
		common.Edge: {
			BrowserType: chromium.NewEdge(),
			Driver:      drivermanager.EdgeConfig{},
		},
		common.Firefox: {
			BrowserType: firefox.NewBrowserType(),
			Driver:      drivermanager.FirefoxConfig{},
		},
		common.InternetExplorer: {
			BrowserType: iexplorer.NewBrowserType(),
			Driver:      drivermanager.InternetExplorerConfig{},
		},
		common.Opera: {
			BrowserType: chromium.NewOpera(),
			Driver:      drivermanager.OperaConfig{},
		},
	}
}

// Lookup returns the vendor of the browser named s. Names are parsed
// with common.ParseBrowserName, so unknown names select Chrome.
func (r Registry) Lookup(s string) (Vendor, common.BrowserName, bool) {
	name := common.ParseBrowserName(s)
	v, ok := r[name]

	return v, name, ok
}
