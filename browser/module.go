// Package browser provides the process-wide WebDriver: it picks the
// browser type for a browser name, sets up its driver binary and keeps
// the single active session.
package browser

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/grafana/webdriver-launcher/common"
	"github.com/grafana/webdriver-launcher/drivermanager"
	"github.com/grafana/webdriver-launcher/log"
	"github.com/grafana/webdriver-launcher/osext"
	"github.com/grafana/webdriver-launcher/trace"
)

// Version is the version of the launcher.
const Version = "0.1.0"

// ErrRunDisabled is returned by Start when WEBDRIVER_DISABLE_RUN is set.
var ErrRunDisabled = errors.New("disable run flag enabled, browser run aborted")

// LookupFunc looks up an environment variable.
type LookupFunc func(key string) (string, bool)

// Options configures a Driver.
type Options struct {
	// LaunchOptions are cloned for every launch. Defaults are used
	// when nil.
	LaunchOptions *common.LaunchOptions
	// Installer sets up driver binaries. Drivers are looked up in
	// PATH when nil and no driver path is configured.
	Installer Installer
	// Registry maps browsers to what launches them. DefaultRegistry
	// is used when nil.
	Registry Registry
	Logger   *log.Logger
	Tracer   *trace.Tracer
	// RunID tags the driver processes of the Driver so that
	// osext.ForceProcessShutdown can find them.
	RunID string
	// LookupEnv reads WEBDRIVER_DISABLE_RUN. It defaults to
	// os.LookupEnv.
	LookupEnv LookupFunc
}

// New returns a Driver configured with opts.
func New(opts Options) *Driver {
	if opts.LaunchOptions == nil {
		opts.LaunchOptions = common.NewLaunchOptions()
	}
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNullLogger()
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.NewNoopTracer(opts.Logger.Logger)
	}
	if opts.RunID == "" {
		opts.RunID = osext.NewRunID()
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	return &Driver{
		opts:      opts.LaunchOptions,
		installer: opts.Installer,
		registry:  opts.Registry,
		logger:    opts.Logger,
		tracer:    opts.Tracer,
		runID:     opts.RunID,
		lookupEnv: opts.LookupEnv,
	}
}

// NewFromEnv returns a Driver configured from the WEBDRIVER_* variables
// in env. A nil env reads the process environment. Drivers are set up
// by a drivermanager.Manager unless WEBDRIVER_DRIVER_PATH is set.
func NewFromEnv(env map[string]string) (*Driver, error) {
	lookup := lookupFunc(env)
	runID := osext.NewRunID()
	logger, err := log.NewFromEnv(runID, lookup)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	lopts := common.NewLaunchOptions()
	if err := lopts.Parse(logger, env); err != nil {
		return nil, err //nolint:wrapcheck
	}
	if err := lopts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid launch options: %w", err)
	}
	if err := logger.SetCategoryFilter(lopts.LogCategoryFilter); err != nil {
		return nil, fmt.Errorf("setting log category filter: %w", err)
	}
	logger.SetDebugOverride(lopts.Debug)

	mgr, err := NewManagerFromEnv(lopts, logger, env)
	if err != nil {
		return nil, err
	}

	return New(Options{
		LaunchOptions: lopts,
		Installer:     mgr,
		Logger:        logger,
		RunID:         runID,
		LookupEnv:     lookup,
	}), nil
}

// NewManagerFromEnv returns the driver manager used by NewFromEnv.
// Downloads go through the browser proxy, if any.
// WEBDRIVER_CACHE_DIR, WEBDRIVER_GITHUB_TOKEN and WEBDRIVER_OFFLINE
// configure it further.
func NewManagerFromEnv(lopts *common.LaunchOptions, logger *log.Logger, env map[string]string) (*drivermanager.Manager, error) {
	lookup := lookupFunc(env)
	mopts := drivermanager.ManagerOptions{
		Logger: logger,
	}
	if lopts.Proxy.Server != "" {
		mopts.Proxy = common.TrimQuotes(lopts.Proxy.Server)
	}
	if v, ok := lookup("WEBDRIVER_CACHE_DIR"); ok {
		mopts.CacheDir = v
	}
	if v, ok := lookup("WEBDRIVER_GITHUB_TOKEN"); ok {
		mopts.GitHubToken = v
	}
	if v, ok := lookup("WEBDRIVER_OFFLINE"); ok {
		mopts.Offline = v != "" && v != "0" && !strings.EqualFold(v, "false")
	}

	mgr, err := drivermanager.NewManager(mopts)
	if err != nil {
		return nil, fmt.Errorf("creating driver manager: %w", err)
	}

	return mgr, nil
}

// checkRunEnabled fails when WEBDRIVER_DISABLE_RUN is set. The message
// can be replaced with WEBDRIVER_DISABLE_RUN_MSG.
func checkRunEnabled(lookup LookupFunc) error {
	if _, ok := lookup("WEBDRIVER_DISABLE_RUN"); !ok {
		return nil
	}
	if m, ok := lookup("WEBDRIVER_DISABLE_RUN_MSG"); ok {
		return fmt.Errorf("%w: %s", ErrRunDisabled, m)
	}

	return ErrRunDisabled
}

func lookupFunc(env map[string]string) LookupFunc {
	if env == nil {
		return os.LookupEnv
	}
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}
