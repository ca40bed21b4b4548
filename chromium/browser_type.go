/*
 *
 * webdriver-launcher - configures and launches WebDriver sessions
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package chromium launches Chromium based browsers, Chrome, Edge and
// Opera, through their WebDriver implementations.
package chromium

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"sort"
	"strings"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"

	"github.com/grafana/webdriver-launcher/cdp"
	"github.com/grafana/webdriver-launcher/common"
	"github.com/grafana/webdriver-launcher/log"
	"github.com/grafana/webdriver-launcher/storage"
)

// ErrBrowserNotFoundAtPath is returned when the configured browser
// executable can't be found.
var ErrBrowserNotFoundAtPath = errors.New("browser executable not found at path")

// Ensure BrowserType implements the common.BrowserType interface.
var _ common.BrowserType = &BrowserType{}

// vendor holds what tells Chromium based browsers apart.
type vendor struct {
	name common.BrowserName
	// W3C browserName capability.
	browserName string
	// Capability key of the vendor options.
	optionsKey string
	driverName string
	// Chrome gets the launcher's default flags and preferences.
	defaults bool
}

// BrowserType launches one Chromium based browser.
type BrowserType struct {
	vendor vendor

	// lookPath checks the configured browser executable.
	lookPath func(file string) (string, error)
}

// NewChrome returns the Google Chrome browser type.
func NewChrome() *BrowserType {
	return newBrowserType(vendor{
		name:        common.Chrome,
		browserName: "chrome",
		optionsKey:  chrome.CapabilitiesKey,
		driverName:  "chromedriver",
		defaults:    true,
	})
}

// NewEdge returns the Microsoft Edge browser type.
func NewEdge() *BrowserType {
	return newBrowserType(vendor{
		name:        common.Edge,
		browserName: "MicrosoftEdge",
		optionsKey:  "ms:edgeOptions",
		driverName:  "msedgedriver",
	})
}

// NewOpera returns the Opera browser type.
func NewOpera() *BrowserType {
	return newBrowserType(vendor{
		name:        common.Opera,
		browserName: "opera",
		optionsKey:  "operaOptions",
		driverName:  "operadriver",
	})
}

func newBrowserType(v vendor) *BrowserType {
	return &BrowserType{
		vendor:   v,
		lookPath: exec.LookPath,
	}
}

// Name returns the browser name.
func (b *BrowserType) Name() common.BrowserName {
	return b.vendor.name
}

// DriverName returns the driver binary name.
func (b *BrowserType) DriverName() string {
	return b.vendor.driverName
}

// DriverArgs returns the command line of a chromedriver compatible driver.
func (b *BrowserType) DriverArgs(port int, opts *common.LaunchOptions) ([]string, bool) {
	args := []string{fmt.Sprintf("--port=%d", port)}
	if opts.DriverLogPath != "" {
		args = append(args, "--log-path="+opts.DriverLogPath)
	}
	if opts.DriverVerbose {
		args = append(args, "--verbose")
	}

	return args, false
}

// Capabilities returns the session capabilities for opts.
func (b *BrowserType) Capabilities(opts *common.LaunchOptions) (selenium.Capabilities, error) {
	if path := strings.TrimSpace(opts.ExecutablePath); path != "" {
		if _, err := b.lookPath(path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBrowserNotFoundAtPath, path)
		}
	}

	flags := prepareFlags(b.vendor, opts)
	args, err := parseArgs(flags)
	if err != nil {
		return nil, err
	}

	caps := common.NewCapabilities(b.vendor.browserName, opts)
	caps[b.vendor.optionsKey] = chrome.Capabilities{
		Path:            opts.ExecutablePath,
		Args:            args,
		ExcludeSwitches: opts.ExcludeSwitches,
		Prefs:           preparePrefs(b.vendor, opts),
		W3C:             true,
	}

	return caps, nil
}

// Launch starts the driver, creates a session and, when a network
// profile is set, throttles the session's page.
func (b *BrowserType) Launch(ctx context.Context, opts *common.LaunchOptions, logger *log.Logger) (*common.Browser, error) {
	opts = opts.Clone()

	var downloads storage.Dir
	if b.vendor.defaults {
		if err := downloads.Make("", opts.DownloadDir, "webdriver-downloads-"); err != nil {
			return nil, fmt.Errorf("%w", err)
		}
		opts.DownloadDir = downloads.Dir
		logger.Debugf("chromium:Launch", "downloads go to %s (temporary:%t)", downloads.Dir, downloads.IsTemporary())
	}

	var (
		profile   common.NetworkProfile
		debugPort int
		err       error
	)
	if opts.NetworkProfile != "" {
		if profile, err = common.LookupNetworkProfile(opts.NetworkProfile); err != nil {
			_ = downloads.Cleanup()
			return nil, err
		}
		if debugPort, err = common.FreePort(); err != nil {
			_ = downloads.Cleanup()
			return nil, fmt.Errorf("finding a free DevTools port: %w", err)
		}
		opts.Args = append(opts.Args, fmt.Sprintf("remote-debugging-port=%d", debugPort))
	}

	browser, err := common.LaunchBrowser(ctx, b, opts, logger)
	if err != nil {
		_ = downloads.Cleanup()
		return nil, err
	}
	browser.OnDispose(downloads.Cleanup)

	if debugPort != 0 {
		if err := throttle(ctx, browser, debugPort, profile, opts, logger); err != nil {
			_ = browser.Close()
			return nil, err
		}
	}

	return browser, nil
}

// throttle applies profile to the first page of the browser over CDP.
// The CDP connection stays open for as long as the browser does.
func throttle(
	ctx context.Context, browser *common.Browser, port int, profile common.NetworkProfile,
	opts *common.LaunchOptions, logger *log.Logger,
) error {
	tctx, cancel := common.WithStartupTimeout(ctx, opts.Timeout)
	defer cancel()

	wsURL, err := cdp.Discover(tctx, http.DefaultClient, fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("throttling network: %w", err)
	}
	client := cdp.NewClient(logger)
	if err := client.Connect(tctx, wsURL); err != nil {
		return fmt.Errorf("throttling network: %w", err)
	}
	browser.OnDispose(func() error {
		// The browser is gone by now and so is usually the connection.
		if err := client.Close(); err != nil {
			logger.Debugf("chromium:throttle", "closing CDP connection: %v", err)
		}
		return nil
	})

	if v, err := client.Browser.Version(tctx); err == nil {
		logger.Debugf("chromium:throttle", "connected to %s", v.Product)
	}
	if err := client.Network.Enable(tctx); err != nil {
		return fmt.Errorf("enabling network domain: %w", err)
	}
	err = client.Network.EmulateNetworkConditions(tctx, false, profile.Latency, profile.Download, profile.Upload)
	if err != nil {
		return fmt.Errorf("emulating network conditions: %w", err)
	}
	logger.Infof("chromium:throttle", "network profile %q applied", opts.NetworkProfile)

	return nil
}

// parseArgs turns flags into sorted command line arguments.
func parseArgs(flags map[string]any) ([]string, error) {
	args := make([]string, 0, len(flags))
	for name, value := range flags {
		switch value := value.(type) {
		case string:
			args = append(args, parseStringArg(name, value))
		case bool:
			if value {
				args = append(args, fmt.Sprintf("--%s", name))
			}
		default:
			return nil, fmt.Errorf(`invalid browser command line flag: "%s=%v"`, name, value)
		}
	}
	sort.Strings(args)

	return args, nil
}

func parseStringArg(flag string, value string) string {
	if strings.TrimSpace(value) == "" {
		// "--name=" is not a valid flag.
		return fmt.Sprintf("--%s", flag)
	}
	return fmt.Sprintf("--%s=%s", flag, value)
}

func prepareFlags(v vendor, lopts *common.LaunchOptions) map[string]any {
	f := map[string]any{}
	if v.defaults {
		f["no-sandbox"] = true
		f["ignore-certificate-errors"] = true
		f["start-maximized"] = true
	}
	if lopts.Headless {
		f["headless"] = true
		f["disable-gpu"] = true
		if v.defaults {
			f["window-size"] = "1920,1080"
			if lopts.Proxy.Server == "" {
				f["proxy-server"] = "direct://"
				f["proxy-bypass-list"] = "*"
			}
		}
	}
	ignoreDefaultArgsFlags(f, lopts.IgnoreDefaultArgs)
	setFlagsFromArgs(f, lopts.Args)

	return f
}

// preparePrefs returns the browser preferences. Chrome downloads to the
// launch download directory without prompting.
func preparePrefs(v vendor, lopts *common.LaunchOptions) map[string]any {
	prefs := make(map[string]any, len(lopts.Prefs)+4)
	if v.defaults && lopts.DownloadDir != "" {
		prefs["download.default_directory"] = lopts.DownloadDir
		prefs["download.prompt_for_download"] = false
		prefs["download.directory_upgrade"] = true
		prefs["safebrowsing.enabled"] = true
	}
	for k, val := range lopts.Prefs {
		prefs[k] = val
	}
	if len(prefs) == 0 {
		return nil
	}

	return prefs
}

// ignoreDefaultArgsFlags ignores any flags in the provided slice.
func ignoreDefaultArgsFlags(flags map[string]any, toIgnore []string) {
	for _, name := range toIgnore {
		delete(flags, strings.TrimPrefix(name, "--"))
	}
}

// setFlagsFromArgs fills flags by parsing the args slice.
// Arguments are given as "name=value" or "name", with or without
// the leading dashes.
func setFlagsFromArgs(flags map[string]any, args []string) {
	var argname, argval string
	for _, arg := range args {
		pair := strings.SplitN(arg, "=", 2)
		argname, argval = strings.TrimPrefix(strings.TrimSpace(pair[0]), "--"), ""
		if len(pair) > 1 {
			argval = common.TrimQuotes(strings.TrimSpace(pair[1]))
		}
		flags[argname] = argval
	}
}
