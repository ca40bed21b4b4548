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

package common

import (
	"github.com/tebeka/selenium"
)

// TrimQuotes removes one pair of matching single or double quotes
// around s.
func TrimQuotes(s string) string {
	if len(s) >= 2 {
		if c := s[len(s)-1]; s[0] == c && (c == '"' || c == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// NewCapabilities returns the capabilities every vendor shares: the W3C
// browser name, certificate handling and the proxy.
func NewCapabilities(browserName string, opts *LaunchOptions) selenium.Capabilities {
	caps := selenium.Capabilities{"browserName": browserName}
	if opts.AcceptInsecureCerts {
		caps["acceptInsecureCerts"] = true
	}
	if opts.Proxy.Server != "" {
		caps.AddProxy(selenium.Proxy{
			Type:    selenium.Manual,
			HTTP:    opts.Proxy.Server,
			SSL:     opts.Proxy.Server,
			NoProxy: opts.Proxy.Bypass,
		})
	}

	return caps
}
