package common

import "strings"

// BrowserName identifies a browser vendor.
type BrowserName string

// Supported browsers. The values are the names accepted by the
// original launcher, so "IE" keeps its upper case.
const (
	Chrome           BrowserName = "chrome"
	Edge             BrowserName = "edge"
	Firefox          BrowserName = "firefox"
	InternetExplorer BrowserName = "IE"
	Opera            BrowserName = "opera"
)

// BrowserNames lists every supported browser.
func BrowserNames() []BrowserName {
	return []BrowserName{Chrome, Edge, Firefox, InternetExplorer, Opera}
}

// ParseBrowserName maps s to a browser. Matching is case-insensitive and
// a few common aliases are accepted. Anything else, the empty string
// included, is Chrome.
func ParseBrowserName(s string) BrowserName {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "edge", "msedge", "microsoftedge":
		return Edge
	case "ie", "internet explorer", "internetexplorer", "iexplore":
		return InternetExplorer
	case "firefox", "gecko":
		return Firefox
	case "opera":
		return Opera
	default:
		return Chrome
	}
}

// IsChromium reports whether the browser is built on Chromium and
// therefore exposes the DevTools protocol.
func (b BrowserName) IsChromium() bool {
	switch b {
	case Chrome, Edge, Opera:
		return true
	default:
		return false
	}
}

func (b BrowserName) String() string {
	return string(b)
}
