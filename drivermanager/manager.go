// Package drivermanager downloads, caches and locates the WebDriver
// binaries of the supported browsers.
package drivermanager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/grafana/webdriver-launcher/log"
	"github.com/grafana/webdriver-launcher/storage"
)

// ManagerOptions configures a Manager. The zero value is usable.
type ManagerOptions struct {
	// CacheDir holds the installed drivers. It defaults to
	// <user cache dir>/webdriver-launcher/drivers.
	CacheDir string
	// HTTPClient overrides the client built from Proxy.
	HTTPClient *http.Client
	// Proxy is the URL of the proxy used for downloads. The standard
	// proxy environment variables are used when it's empty.
	Proxy string
	// GitHubToken authenticates GitHub API calls, which are rate limited.
	GitHubToken string
	// Offline disables downloads, drivers come from the cache or PATH.
	Offline bool
	// Platform overrides the detected platform.
	Platform *Platform
	Logger   *log.Logger
}

// Manager sets up driver binaries.
type Manager struct {
	cacheDir  string
	fetcher   Fetcher
	platform  Platform
	offline   bool
	persister storage.FilePersister
	logger    *log.Logger

	group singleflight.Group

	// lookPath finds drivers in PATH.
	lookPath func(file string) (string, error)
}

// NewManager returns a Manager configured with opts.
func NewManager(opts ManagerOptions) (*Manager, error) {
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		userCache, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("finding the user cache directory: %w", err)
		}
		cacheDir = filepath.Join(userCache, "webdriver-launcher", "drivers")
	}
	client := opts.HTTPClient
	if client == nil {
		client = newHTTPClient(opts.Proxy)
	}
	platform := CurrentPlatform()
	if opts.Platform != nil {
		platform = *opts.Platform
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNullLogger()
	}

	return &Manager{
		cacheDir:  cacheDir,
		fetcher:   newHTTPFetcher(client, opts.GitHubToken),
		platform:  platform,
		offline:   opts.Offline,
		persister: &storage.AtomicFilePersister{Mode: 0o755},
		logger:    logger,
		lookPath:  exec.LookPath,
	}, nil
}

// CacheDir returns the directory drivers are installed in.
func (m *Manager) CacheDir() string {
	return m.cacheDir
}

// SetUpDriver makes the driver of cfg available and returns its path.
// version is a driver version or Latest. Concurrent calls for the same
// driver and version share one download.
func (m *Manager) SetUpDriver(ctx context.Context, cfg Config, version string) (string, error) {
	if version == "" {
		version = Latest
	}
	key := cfg.Name() + "@" + version

	v, err, shared := m.group.Do(key, func() (any, error) {
		return m.setUp(ctx, cfg, version)
	})
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	m.logger.Debugf("drivermanager", "%s ready at %s (shared:%t)", key, v, shared)

	return v.(string), nil //nolint:forcetypeassert
}

func (m *Manager) setUp(ctx context.Context, cfg Config, version string) (string, error) {
	binary := cfg.Binary(m.platform)

	if version != Latest {
		if p := m.cachedPath(cfg, version); p != "" {
			return p, nil
		}
	}
	if m.offline {
		return m.offlinePath(cfg, version)
	}

	rel, err := cfg.Resolve(ctx, m.fetcher, m.platform, version)
	if err != nil {
		return "", fmt.Errorf("resolving %s %s for %s: %w", cfg.Name(), version, m.platform, err)
	}
	if p := m.cachedPath(cfg, rel.Version); p != "" {
		return p, nil
	}

	m.logger.Infof("drivermanager", "downloading %s %s from %s", cfg.Name(), rel.Version, rel.URL)
	archive, err := m.fetcher.Get(ctx, rel.URL)
	if err != nil {
		return "", fmt.Errorf("downloading %s %s: %w", cfg.Name(), rel.Version, err)
	}
	bin, err := extractBinary(archiveName(rel.URL), archive, binary)
	if err != nil {
		return "", fmt.Errorf("extracting %s %s: %w", cfg.Name(), rel.Version, err)
	}

	dst := m.binaryPath(cfg, rel.Version)
	if err := m.persister.Persist(ctx, dst, bytes.NewReader(bin)); err != nil {
		return "", fmt.Errorf("installing %s %s: %w", cfg.Name(), rel.Version, err)
	}
	m.logger.Infof("drivermanager", "installed %s %s at %s", cfg.Name(), rel.Version, dst)

	return dst, nil
}

func (m *Manager) binaryPath(cfg Config, version string) string {
	return filepath.Join(m.cacheDir, cfg.Name(), version, cfg.Binary(m.platform))
}

// cachedPath returns the installed binary of version, if any.
func (m *Manager) cachedPath(cfg Config, version string) string {
	p := m.binaryPath(cfg, version)
	if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
		return p
	}
	return ""
}

// CachedVersions returns the installed versions of cfg's driver.
func (m *Manager) CachedVersions(cfg Config) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.cacheDir, cfg.Name()))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s cache: %w", cfg.Name(), err)
	}

	var versions []string
	for _, e := range entries {
		if e.IsDir() && m.cachedPath(cfg, e.Name()) != "" {
			versions = append(versions, e.Name())
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) < 0
	})

	return versions, nil
}

// offlinePath returns the newest cached driver for Latest, or the
// driver found in PATH.
func (m *Manager) offlinePath(cfg Config, version string) (string, error) {
	if version == Latest {
		versions, err := m.CachedVersions(cfg)
		if err != nil {
			return "", err
		}
		if len(versions) > 0 {
			return m.binaryPath(cfg, versions[len(versions)-1]), nil
		}
	}
	p, err := m.lookPath(cfg.Binary(m.platform))
	if err != nil {
		return "", fmt.Errorf("%s %s not cached and not in PATH in offline mode: %w", cfg.Name(), version, err)
	}
	m.logger.Debugf("drivermanager", "offline, using %s from PATH", p)

	return p, nil
}

// compareVersions compares dotted versions numerically, falling back to
// string comparison for parts that aren't numbers.
func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, aerr := strconv.Atoi(as[i])
		bi, berr := strconv.Atoi(bs[i])
		switch {
		case aerr == nil && berr == nil && ai != bi:
			if ai < bi {
				return -1
			}
			return 1
		case (aerr != nil || berr != nil) && as[i] != bs[i]:
			return strings.Compare(as[i], bs[i])
		}
	}

	return len(as) - len(bs)
}
