package common

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mstoykov/envconfig"
	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"

	"github.com/grafana/webdriver-launcher/log"
)

// ProxyOptions allows configuring a manual proxy for the browser.
type ProxyOptions struct {
	Server string
	Bypass []string
}

// LaunchOptions stores browser launch options.
type LaunchOptions struct {
	// Browser is used when no browser is named explicitly.
	Browser             string
	Args                []string
	AcceptInsecureCerts bool
	CommandTimeout      time.Duration
	Debug               bool
	DownloadDir         string
	DriverLogPath       string
	DriverPath          string
	DriverVersion       string
	DriverVerbose       bool
	Env                 map[string]string
	ExecutablePath      string
	ExcludeSwitches     []string
	Headless            bool
	IgnoreDefaultArgs   []string
	ImplicitWait        time.Duration
	LogCategoryFilter   string
	NetworkProfile      string
	Prefs               map[string]any
	Proxy               ProxyOptions
	// Timeout bounds the driver start-up. Zero means no bound.
	Timeout time.Duration
}

// NewLaunchOptions returns the default launch options.
func NewLaunchOptions() *LaunchOptions {
	return &LaunchOptions{
		AcceptInsecureCerts: true,
		CommandTimeout:      DefaultCommandTimeout,
		DriverVersion:       DefaultDriverVersion,
		DriverVerbose:       true,
		Env:                 make(map[string]string),
		ExcludeSwitches:     []string{"enable-automation"},
		ImplicitWait:        DefaultImplicitWait,
		LogCategoryFilter:   ".*",
		Prefs:               make(map[string]any),
		Timeout:             DefaultTimeout,
	}
}

// launchOptionsEnv holds the launch options that can be set with
// environment variables. Unset variables stay null.
type launchOptionsEnv struct {
	Browser             null.String  `envconfig:"WEBDRIVER_BROWSER"`
	Args                []string     `envconfig:"WEBDRIVER_ARGS"`
	AcceptInsecureCerts null.Bool    `envconfig:"WEBDRIVER_ACCEPT_INSECURE_CERTS"`
	CommandTimeout      NullDuration `envconfig:"WEBDRIVER_COMMAND_TIMEOUT"`
	Debug               null.Bool    `envconfig:"WEBDRIVER_DEBUG"`
	DownloadDir         null.String  `envconfig:"WEBDRIVER_DOWNLOAD_DIR"`
	DriverLogPath       null.String  `envconfig:"WEBDRIVER_DRIVER_LOG_PATH"`
	DriverPath          null.String  `envconfig:"WEBDRIVER_DRIVER_PATH"`
	DriverVersion       null.String  `envconfig:"WEBDRIVER_DRIVER_VERSION"`
	DriverVerbose       null.Bool    `envconfig:"WEBDRIVER_DRIVER_VERBOSE"`
	ExecutablePath      null.String  `envconfig:"WEBDRIVER_EXECUTABLE_PATH"`
	Headless            null.Bool    `envconfig:"WEBDRIVER_HEADLESS"`
	IgnoreDefaultArgs   []string     `envconfig:"WEBDRIVER_IGNORE_DEFAULT_ARGS"`
	ImplicitWait        NullDuration `envconfig:"WEBDRIVER_IMPLICIT_WAIT"`
	LogCategoryFilter   null.String  `envconfig:"WEBDRIVER_LOG_CATEGORY_FILTER"`
	NetworkProfile      null.String  `envconfig:"WEBDRIVER_NETWORK_PROFILE"`
	ProxyServer         null.String  `envconfig:"WEBDRIVER_PROXY_SERVER"`
	ProxyBypass         []string     `envconfig:"WEBDRIVER_PROXY_BYPASS"`
	Timeout             NullDuration `envconfig:"WEBDRIVER_TIMEOUT"`
}

// Parse overlays the WEBDRIVER_* variables found in env on top of l.
// A nil env reads the process environment.
func (l *LaunchOptions) Parse(logger *log.Logger, env map[string]string) error {
	lookup := os.LookupEnv
	if env != nil {
		lookup = func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		}
	}

	var e launchOptionsEnv
	if err := envconfig.Process("", &e, lookup); err != nil {
		return fmt.Errorf("parsing launch options from the environment: %w", err)
	}

	setString := func(dst *string, v null.String) {
		if v.Valid {
			*dst = v.String
		}
	}
	setBool := func(dst *bool, v null.Bool) {
		if v.Valid {
			*dst = v.Bool
		}
	}
	setDuration := func(dst *time.Duration, v NullDuration) {
		if v.Valid {
			*dst = v.Duration
		}
	}

	setString(&l.Browser, e.Browser)
	setBool(&l.AcceptInsecureCerts, e.AcceptInsecureCerts)
	setDuration(&l.CommandTimeout, e.CommandTimeout)
	setBool(&l.Debug, e.Debug)
	setString(&l.DownloadDir, e.DownloadDir)
	setString(&l.DriverLogPath, e.DriverLogPath)
	setString(&l.DriverPath, e.DriverPath)
	setString(&l.DriverVersion, e.DriverVersion)
	setBool(&l.DriverVerbose, e.DriverVerbose)
	setString(&l.ExecutablePath, e.ExecutablePath)
	setBool(&l.Headless, e.Headless)
	setDuration(&l.ImplicitWait, e.ImplicitWait)
	setString(&l.LogCategoryFilter, e.LogCategoryFilter)
	setString(&l.NetworkProfile, e.NetworkProfile)
	setString(&l.Proxy.Server, e.ProxyServer)
	setDuration(&l.Timeout, e.Timeout)
	if len(e.Args) > 0 {
		l.Args = append(l.Args, e.Args...)
	}
	if len(e.IgnoreDefaultArgs) > 0 {
		l.IgnoreDefaultArgs = append(l.IgnoreDefaultArgs, e.IgnoreDefaultArgs...)
	}
	if len(e.ProxyBypass) > 0 {
		l.Proxy.Bypass = e.ProxyBypass
	}

	logger.Debugf("LaunchOptions:Parse", "browser:%q headless:%t driverVersion:%q", l.Browser, l.Headless, l.DriverVersion)

	return nil
}

// launchOptionsFile is the YAML representation of the launch options.
// Pointers tell keys absent from the file apart from zero values.
type launchOptionsFile struct {
	Browser             *string           `yaml:"browser"`
	Args                []string          `yaml:"args"`
	AcceptInsecureCerts *bool             `yaml:"acceptInsecureCerts"`
	CommandTimeout      *string           `yaml:"commandTimeout"`
	Debug               *bool             `yaml:"debug"`
	DownloadDir         *string           `yaml:"downloadDir"`
	DriverLogPath       *string           `yaml:"driverLogPath"`
	DriverPath          *string           `yaml:"driverPath"`
	DriverVersion       *string           `yaml:"driverVersion"`
	DriverVerbose       *bool             `yaml:"driverVerbose"`
	Env                 map[string]string `yaml:"env"`
	ExecutablePath      *string           `yaml:"executablePath"`
	ExcludeSwitches     []string          `yaml:"excludeSwitches"`
	Headless            *bool             `yaml:"headless"`
	IgnoreDefaultArgs   []string          `yaml:"ignoreDefaultArgs"`
	ImplicitWait        *string           `yaml:"implicitWait"`
	LogCategoryFilter   *string           `yaml:"logCategoryFilter"`
	NetworkProfile      *string           `yaml:"networkProfile"`
	Prefs               map[string]any    `yaml:"prefs"`
	Proxy               *struct {
		Server string   `yaml:"server"`
		Bypass []string `yaml:"bypass"`
	} `yaml:"proxy"`
	Timeout *string `yaml:"timeout"`
}

// LoadFile overlays the options found in the YAML file at path on top of l.
func (l *LaunchOptions) LoadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return fmt.Errorf("reading launch options file: %w", err)
	}
	return l.unmarshalYAML(data)
}

func (l *LaunchOptions) unmarshalYAML(data []byte) error {
	var f launchOptionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing launch options file: %w", err)
	}

	var (
		errs        []error
		setDuration = func(name string, dst *time.Duration, v *string) {
			if v == nil {
				return
			}
			d, err := time.ParseDuration(*v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s should be a duration: %w", name, err))
				return
			}
			*dst = d
		}
	)

	if b := null.StringFromPtr(f.Browser); b.Valid {
		l.Browser = b.String
	}
	if f.AcceptInsecureCerts != nil {
		l.AcceptInsecureCerts = *f.AcceptInsecureCerts
	}
	setDuration("commandTimeout", &l.CommandTimeout, f.CommandTimeout)
	if f.Debug != nil {
		l.Debug = *f.Debug
	}
	if f.DownloadDir != nil {
		l.DownloadDir = *f.DownloadDir
	}
	if f.DriverLogPath != nil {
		l.DriverLogPath = *f.DriverLogPath
	}
	if f.DriverPath != nil {
		l.DriverPath = *f.DriverPath
	}
	if f.DriverVersion != nil {
		l.DriverVersion = *f.DriverVersion
	}
	if f.DriverVerbose != nil {
		l.DriverVerbose = *f.DriverVerbose
	}
	if l.Env == nil && len(f.Env) > 0 {
		l.Env = make(map[string]string, len(f.Env))
	}
	for k, v := range f.Env {
		l.Env[k] = v
	}
	if f.ExecutablePath != nil {
		l.ExecutablePath = *f.ExecutablePath
	}
	if f.ExcludeSwitches != nil {
		l.ExcludeSwitches = f.ExcludeSwitches
	}
	if f.Headless != nil {
		l.Headless = *f.Headless
	}
	l.Args = append(l.Args, f.Args...)
	l.IgnoreDefaultArgs = append(l.IgnoreDefaultArgs, f.IgnoreDefaultArgs...)
	setDuration("implicitWait", &l.ImplicitWait, f.ImplicitWait)
	if f.LogCategoryFilter != nil {
		l.LogCategoryFilter = *f.LogCategoryFilter
	}
	if f.NetworkProfile != nil {
		l.NetworkProfile = *f.NetworkProfile
	}
	if l.Prefs == nil && len(f.Prefs) > 0 {
		l.Prefs = make(map[string]any, len(f.Prefs))
	}
	for k, v := range f.Prefs {
		l.Prefs[k] = v
	}
	if f.Proxy != nil {
		l.Proxy = ProxyOptions{Server: f.Proxy.Server, Bypass: f.Proxy.Bypass}
	}
	setDuration("timeout", &l.Timeout, f.Timeout)

	return errors.Join(errs...)
}

// Validate validates the launch options.
func (l *LaunchOptions) Validate() error {
	var errs []error

	for name, d := range map[string]time.Duration{
		"commandTimeout": l.CommandTimeout,
		"implicitWait":   l.ImplicitWait,
		"timeout":        l.Timeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s should be a positive duration, got %s", name, d))
		}
	}
	if l.NetworkProfile != "" {
		if _, err := LookupNetworkProfile(l.NetworkProfile); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := regexp.Compile(l.LogCategoryFilter); err != nil {
		errs = append(errs, fmt.Errorf("invalid logCategoryFilter %q: %w", l.LogCategoryFilter, err))
	}
	if strings.TrimSpace(l.DriverVersion) == "" {
		errs = append(errs, errors.New("driverVersion should not be empty"))
	}

	return errors.Join(errs...)
}

// Clone returns a deep copy of l.
func (l *LaunchOptions) Clone() *LaunchOptions {
	c := *l
	c.Args = append([]string(nil), l.Args...)
	c.ExcludeSwitches = append([]string(nil), l.ExcludeSwitches...)
	c.IgnoreDefaultArgs = append([]string(nil), l.IgnoreDefaultArgs...)
	c.Proxy.Bypass = append([]string(nil), l.Proxy.Bypass...)
	c.Env = make(map[string]string, len(l.Env))
	for k, v := range l.Env {
		c.Env[k] = v
	}
	c.Prefs = make(map[string]any, len(l.Prefs))
	for k, v := range l.Prefs {
		c.Prefs[k] = v
	}

	return &c
}

// EnvList returns Env as a list of KEY=VALUE pairs.
func (l *LaunchOptions) EnvList() []string {
	envs := make([]string, 0, len(l.Env))
	for k, v := range l.Env {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}
