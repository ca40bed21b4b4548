package drivermanager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Latest asks for the most recent stable driver.
const Latest = "latest"

// ErrVersionNotFound is returned when a vendor doesn't publish the
// requested driver version.
var ErrVersionNotFound = errors.New("driver version not found")

// Release is a resolved driver version and where to download it from.
type Release struct {
	Version string
	URL     string
}

// Config tells the Manager where a vendor publishes its driver.
type Config interface {
	// Name returns the driver name, also used as its cache directory.
	Name() string
	// Binary returns the file name of the driver binary on p.
	Binary(p Platform) string
	// Resolve returns the release of version, or of the latest stable
	// driver when version is Latest.
	Resolve(ctx context.Context, f Fetcher, p Platform, version string) (Release, error)
}

const (
	defaultChromeURL = "https://googlechromelabs.github.io/chrome-for-testing"
	defaultEdgeURL   = "https://msedgedriver.microsoft.com"
	defaultGitHubURL = "https://api.github.com"
)

// ChromeConfig resolves chromedriver from the Chrome for Testing
// endpoints.
type ChromeConfig struct {
	BaseURL string
}

// Name returns chromedriver.
func (c ChromeConfig) Name() string { return "chromedriver" }

// Binary returns the chromedriver executable name.
func (c ChromeConfig) Binary(p Platform) string { return p.executable(c.Name()) }

// Resolve finds the chromedriver download for version.
func (c ChromeConfig) Resolve(ctx context.Context, f Fetcher, p Platform, version string) (Release, error) {
	plat, err := p.lookup(c.Name(), map[Platform]string{
		{"linux", "amd64"}:   "linux64",
		{"darwin", "amd64"}:  "mac-x64",
		{"darwin", "arm64"}:  "mac-arm64",
		{"windows", "amd64"}: "win64",
		{"windows", "386"}:   "win32",
	})
	if err != nil {
		return Release{}, err
	}
	base := orDefault(c.BaseURL, defaultChromeURL)

	var entry gjson.Result
	if version == Latest {
		doc, err := getJSON(ctx, f, base+"/last-known-good-versions-with-downloads.json")
		if err != nil {
			return Release{}, err
		}
		entry = doc.Get("channels.Stable")
	} else {
		doc, err := getJSON(ctx, f, base+"/known-good-versions-with-downloads.json")
		if err != nil {
			return Release{}, err
		}
		entry = doc.Get(fmt.Sprintf(`versions.#(version==%q)`, version))
	}
	if !entry.Exists() {
		return Release{}, fmt.Errorf("%s %s: %w", c.Name(), version, ErrVersionNotFound)
	}

	url := entry.Get(fmt.Sprintf(`downloads.chromedriver.#(platform==%q).url`, plat)).String()
	if url == "" {
		return Release{}, fmt.Errorf("%s %s: %w %s", c.Name(), version, ErrUnsupportedPlatform, p)
	}

	return Release{Version: entry.Get("version").String(), URL: url}, nil
}

// EdgeConfig resolves msedgedriver from Microsoft's driver storage.
type EdgeConfig struct {
	BaseURL string
}

// Name returns msedgedriver.
func (c EdgeConfig) Name() string { return "msedgedriver" }

// Binary returns the msedgedriver executable name.
func (c EdgeConfig) Binary(p Platform) string { return p.executable(c.Name()) }

// Resolve finds the msedgedriver download for version.
func (c EdgeConfig) Resolve(ctx context.Context, f Fetcher, p Platform, version string) (Release, error) {
	plat, err := p.lookup(c.Name(), map[Platform]string{
		{"linux", "amd64"}:   "linux64",
		{"darwin", "amd64"}:  "mac64",
		{"darwin", "arm64"}:  "mac64_m1",
		{"windows", "amd64"}: "win64",
		{"windows", "386"}:   "win32",
		{"windows", "arm64"}: "arm64",
	})
	if err != nil {
		return Release{}, err
	}
	base := orDefault(c.BaseURL, defaultEdgeURL)

	if version == Latest {
		body, err := f.Get(ctx, base+"/LATEST_STABLE")
		if err != nil {
			return Release{}, err
		}
		if version, err = decodeVersionFile(body); err != nil {
			return Release{}, fmt.Errorf("%s: %w", c.Name(), err)
		}
	}

	return Release{
		Version: version,
		URL:     fmt.Sprintf("%s/%s/edgedriver_%s.zip", base, version, plat),
	}, nil
}

// decodeVersionFile decodes a version file published as UTF-16 with a
// byte order mark, or as plain UTF-8.
func decodeVersionFile(b []byte) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	s, err := io.ReadAll(transform.NewReader(bytes.NewReader(b), dec))
	if err != nil {
		return "", fmt.Errorf("decoding version file: %w", err)
	}
	v := strings.TrimSpace(string(s))
	if v == "" {
		return "", errors.New("empty version file")
	}

	return v, nil
}

// FirefoxConfig resolves geckodriver from its GitHub releases.
type FirefoxConfig struct {
	BaseURL string
}

// Name returns geckodriver.
func (c FirefoxConfig) Name() string { return "geckodriver" }

// Binary returns the geckodriver executable name.
func (c FirefoxConfig) Binary(p Platform) string { return p.executable(c.Name()) }

// Resolve finds the geckodriver release asset for version.
func (c FirefoxConfig) Resolve(ctx context.Context, f Fetcher, p Platform, version string) (Release, error) {
	suffix, err := p.lookup(c.Name(), map[Platform]string{
		{"linux", "amd64"}:   "-linux64.tar.gz",
		{"linux", "386"}:     "-linux32.tar.gz",
		{"linux", "arm64"}:   "-linux-aarch64.tar.gz",
		{"darwin", "amd64"}:  "-macos.tar.gz",
		{"darwin", "arm64"}:  "-macos-aarch64.tar.gz",
		{"windows", "amd64"}: "-win64.zip",
		{"windows", "386"}:   "-win32.zip",
		{"windows", "arm64"}: "-win-aarch64.zip",
	})
	if err != nil {
		return Release{}, err
	}

	return githubRelease{
		baseURL: c.BaseURL,
		repo:    "mozilla/geckodriver",
		tag:     func(v string) string { return "v" + v },
		version: func(tag string) string { return strings.TrimPrefix(tag, "v") },
		asset:   "*" + suffix,
	}.resolve(ctx, f, c.Name(), version)
}

// OperaConfig resolves operadriver from its GitHub releases.
type OperaConfig struct {
	BaseURL string
}

// Name returns operadriver.
func (c OperaConfig) Name() string { return "operadriver" }

// Binary returns the operadriver executable name.
func (c OperaConfig) Binary(p Platform) string { return p.executable(c.Name()) }

// Resolve finds the operadriver release asset for version.
func (c OperaConfig) Resolve(ctx context.Context, f Fetcher, p Platform, version string) (Release, error) {
	plat, err := p.lookup(c.Name(), map[Platform]string{
		{"linux", "amd64"}:   "linux64",
		{"darwin", "amd64"}:  "mac64",
		{"darwin", "arm64"}:  "mac64",
		{"windows", "amd64"}: "win64",
		{"windows", "386"}:   "win32",
	})
	if err != nil {
		return Release{}, err
	}

	return githubRelease{
		baseURL: c.BaseURL,
		repo:    "operasoftware/operachromiumdriver",
		tag:     func(v string) string { return "v." + v },
		version: func(tag string) string { return strings.TrimPrefix(strings.TrimPrefix(tag, "v"), ".") },
		asset:   "operadriver_" + plat + ".zip",
	}.resolve(ctx, f, c.Name(), version)
}

// InternetExplorerConfig resolves IEDriverServer from the Selenium
// GitHub releases.
type InternetExplorerConfig struct {
	BaseURL string
}

// Name returns IEDriverServer.
func (c InternetExplorerConfig) Name() string { return "IEDriverServer" }

// Binary returns the IEDriverServer executable name.
func (c InternetExplorerConfig) Binary(p Platform) string { return p.executable(c.Name()) }

// Resolve finds the 32-bit IEDriverServer release asset for version.
// IEDriverServer only exists for Windows.
func (c InternetExplorerConfig) Resolve(ctx context.Context, f Fetcher, p Platform, version string) (Release, error) {
	if !p.IsWindows() {
		return Release{}, fmt.Errorf("%s: %w %s", c.Name(), ErrUnsupportedPlatform, p)
	}

	return githubRelease{
		baseURL: c.BaseURL,
		repo:    "SeleniumHQ/selenium",
		tag:     func(v string) string { return "selenium-" + v },
		version: func(tag string) string { return strings.TrimPrefix(tag, "selenium-") },
		asset:   "IEDriverServer_Win32_*.zip",
	}.resolve(ctx, f, c.Name(), version)
}

// githubRelease finds a release asset through the GitHub REST API.
type githubRelease struct {
	baseURL string
	repo    string
	// tag maps a version to its release tag, version does the reverse.
	tag     func(version string) string
	version func(tag string) string
	// asset is a gjson pattern matching the asset name.
	asset string
}

func (g githubRelease) resolve(ctx context.Context, f Fetcher, name, version string) (Release, error) {
	u := orDefault(g.baseURL, defaultGitHubURL) + "/repos/" + g.repo + "/releases/"
	if version == Latest {
		u += "latest"
	} else {
		u += "tags/" + g.tag(version)
	}

	doc, err := getJSON(ctx, f, u)
	if err != nil {
		return Release{}, fmt.Errorf("%s %s: %w: %w", name, version, ErrVersionNotFound, err)
	}

	asset := doc.Get(fmt.Sprintf(`assets.#(name%%%q).browser_download_url`, g.asset))
	if !asset.Exists() {
		return Release{}, fmt.Errorf("%s %s: no asset matching %q", name, version, g.asset)
	}

	return Release{
		Version: g.version(doc.Get("tag_name").String()),
		URL:     asset.String(),
	}, nil
}

// archiveName returns the file name part of a download URL.
func archiveName(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return path.Base(url)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return strings.TrimSuffix(s, "/")
}
