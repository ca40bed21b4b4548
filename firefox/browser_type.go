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

// Package firefox launches Mozilla Firefox through geckodriver.
package firefox

import (
	"context"
	"strconv"
	"strings"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/firefox"

	"github.com/grafana/webdriver-launcher/common"
	"github.com/grafana/webdriver-launcher/log"
)

// Ensure BrowserType implements the common.BrowserType interface.
var _ common.BrowserType = &BrowserType{}

// BrowserType launches Firefox.
type BrowserType struct{}

// NewBrowserType returns the Firefox browser type.
func NewBrowserType() *BrowserType {
	return &BrowserType{}
}

// Name returns the browser name.
func (b *BrowserType) Name() common.BrowserName {
	return common.Firefox
}

// DriverName returns the driver binary name.
func (b *BrowserType) DriverName() string {
	return "geckodriver"
}

// DriverArgs returns the geckodriver command line. geckodriver logs to
// its standard output.
func (b *BrowserType) DriverArgs(port int, opts *common.LaunchOptions) ([]string, bool) {
	args := []string{"--port", strconv.Itoa(port)}
	if opts.DriverVerbose {
		args = append(args, "--log", "debug")
	}

	return args, true
}

// Capabilities returns the session capabilities for opts.
func (b *BrowserType) Capabilities(opts *common.LaunchOptions) (selenium.Capabilities, error) {
	caps := common.NewCapabilities("firefox", opts)

	fc := firefox.Capabilities{
		Binary: opts.ExecutablePath,
		Args:   prepareArgs(opts),
	}
	prefs := make(map[string]interface{}, len(opts.Prefs)+3)
	if opts.DownloadDir != "" {
		prefs["browser.download.folderList"] = 2
		prefs["browser.download.dir"] = opts.DownloadDir
		prefs["browser.download.useDownloadDir"] = true
	}
	for k, v := range opts.Prefs {
		prefs[k] = v
	}
	if len(prefs) > 0 {
		fc.Prefs = prefs
	}
	caps.AddFirefox(fc)

	return caps, nil
}

// Launch starts geckodriver and creates a session. Firefox doesn't
// speak CDP so network profiles are refused.
func (b *BrowserType) Launch(ctx context.Context, opts *common.LaunchOptions, logger *log.Logger) (*common.Browser, error) {
	return common.LaunchBrowser(ctx, b, opts.Clone(), logger)
}

func prepareArgs(opts *common.LaunchOptions) []string {
	var args []string
	if opts.Headless && !ignored(opts.IgnoreDefaultArgs, "headless") {
		args = append(args, "-headless")
	}

	return append(args, opts.Args...)
}

func ignored(toIgnore []string, arg string) bool {
	for _, a := range toIgnore {
		if strings.TrimLeft(a, "-") == arg {
			return true
		}
	}
	return false
}
