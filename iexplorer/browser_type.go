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

// Package iexplorer launches Internet Explorer through IEDriverServer.
package iexplorer

import (
	"context"
	"fmt"
	"strings"

	"github.com/tebeka/selenium"

	"github.com/grafana/webdriver-launcher/common"
	"github.com/grafana/webdriver-launcher/log"
)

const optionsKey = "se:ieOptions"

// Ensure BrowserType implements the common.BrowserType interface.
var _ common.BrowserType = &BrowserType{}

// BrowserType launches Internet Explorer.
type BrowserType struct{}

// NewBrowserType returns the Internet Explorer browser type.
func NewBrowserType() *BrowserType {
	return &BrowserType{}
}

// Name returns the browser name.
func (b *BrowserType) Name() common.BrowserName {
	return common.InternetExplorer
}

// DriverName returns the driver binary name.
func (b *BrowserType) DriverName() string {
	return "IEDriverServer"
}

// DriverArgs returns the IEDriverServer command line.
func (b *BrowserType) DriverArgs(port int, opts *common.LaunchOptions) ([]string, bool) {
	args := []string{fmt.Sprintf("--port=%d", port)}
	if opts.DriverLogPath != "" {
		args = append(args, "--log-file="+opts.DriverLogPath)
	}
	if opts.DriverVerbose {
		args = append(args, "--log-level=DEBUG")
	}

	return args, false
}

// Capabilities returns the session capabilities for opts. IE predates
// acceptInsecureCerts and rejects it, so it's left out.
func (b *BrowserType) Capabilities(opts *common.LaunchOptions) (selenium.Capabilities, error) {
	o := opts.Clone()
	o.AcceptInsecureCerts = false
	caps := common.NewCapabilities("internet explorer", o)

	ieOpts := map[string]any{}
	if len(opts.Args) > 0 {
		ieOpts["ie.browserCommandLineSwitches"] = strings.Join(opts.Args, " ")
		ieOpts["ie.forceCreateProcessApi"] = true
	}
	caps[optionsKey] = ieOpts

	return caps, nil
}

// Launch starts IEDriverServer and creates a session. IE has no
// headless mode and no CDP support.
func (b *BrowserType) Launch(ctx context.Context, opts *common.LaunchOptions, logger *log.Logger) (*common.Browser, error) {
	if opts.Headless {
		logger.Warnf("iexplorer:Launch", "Internet Explorer has no headless mode, launching with a window")
	}

	return common.LaunchBrowser(ctx, b, opts.Clone(), logger)
}
