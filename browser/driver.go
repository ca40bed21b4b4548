package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/grafana/webdriver-launcher/api"
	"github.com/grafana/webdriver-launcher/common"
	"github.com/grafana/webdriver-launcher/log"
	"github.com/grafana/webdriver-launcher/osext"
	"github.com/grafana/webdriver-launcher/trace"
)

var (
	// ErrAlreadyStarted is returned when starting a Driver that has an
	// active session.
	ErrAlreadyStarted = errors.New("driver already started")
	// ErrNotStarted is returned when using a Driver without an active
	// session.
	ErrNotStarted = errors.New("driver not started")
	// ErrUnknownBrowser is returned when the registry has no vendor
	// for a browser.
	ErrUnknownBrowser = errors.New("no vendor registered for browser")
)

// Driver keeps at most one active WebDriver session. It is safe for
// concurrent use.
type Driver struct {
	mu          sync.Mutex
	browser     *common.Browser
	waitEnabled bool

	opts      *common.LaunchOptions
	installer Installer
	registry  Registry
	logger    *log.Logger
	tracer    *trace.Tracer
	runID     string
	lookupEnv LookupFunc
}

// Start launches the browser named browserType and makes its session
// the active one. Unknown and empty names start Chrome. The driver
// binary is set up first unless a driver path is configured.
// ctx bounds the lifetime of the driver process.
func (d *Driver) Start(ctx context.Context, browserType string) (err error) {
	if err := checkRunEnabled(d.lookupEnv); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser != nil {
		return fmt.Errorf("%w: %s is running", ErrAlreadyStarted, d.browser.Name())
	}

	v, name, ok := d.registry.Lookup(browserType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBrowser, name)
	}

	ctx = osext.WithRunID(ctx, d.runID)
	spanCtx, span := d.tracer.Start(ctx, "driver.start",
		oteltrace.WithAttributes(attribute.String("browser.name", name.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	opts := d.opts.Clone()
	if err := d.setUpDriver(spanCtx, v, opts); err != nil {
		return err
	}

	b, err := v.BrowserType.Launch(ctx, opts, d.logger)
	if err != nil {
		return fmt.Errorf("launching %s: %w", name, err)
	}
	d.browser = b
	d.waitEnabled = true

	sessionID := b.WebDriver().SessionID()
	d.tracer.TraceSession(ctx, sessionID, oteltrace.WithAttributes(attribute.String("browser.name", name.String())))
	d.logger.Infof("Driver:Start", "%s session %s is active", name, sessionID)

	return nil
}

func (d *Driver) setUpDriver(ctx context.Context, v Vendor, opts *common.LaunchOptions) error {
	if opts.DriverPath != "" || d.installer == nil || v.Driver == nil {
		return nil
	}

	ctx, span := d.tracer.Start(ctx, "driver.setup", oteltrace.WithAttributes(
		attribute.String("driver.name", v.Driver.Name()),
		attribute.String("driver.version", opts.DriverVersion),
	))
	defer span.End()

	path, err := d.installer.SetUpDriver(ctx, v.Driver, opts.DriverVersion)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("setting up %s: %w", v.Driver.Name(), err)
	}
	d.logger.Debugf("Driver:setUpDriver", "using %s", path)
	opts.DriverPath = path

	return nil
}

// Instance returns the active session, or nil.
func (d *Driver) Instance() api.WebDriver {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser == nil {
		return nil
	}
	return d.browser.WebDriver()
}

// Browser returns the active browser, or nil.
func (d *Driver) Browser() api.Browser {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser == nil {
		return nil
	}
	return d.browser
}

// Close closes the window, quits the session and disposes of the
// active browser. The Driver can be started again afterwards, even if
// closing failed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := d.browser
	if b == nil {
		return ErrNotStarted
	}
	d.browser = nil
	d.waitEnabled = false

	sessionID := b.WebDriver().SessionID()
	_, span := d.tracer.TraceAPICall(context.Background(), sessionID, "driver.close")
	err := b.Close()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	d.tracer.EndSession(sessionID)

	if err != nil {
		return fmt.Errorf("closing %s: %w", b.Name(), err)
	}
	d.logger.Infof("Driver:Close", "%s session %s closed", b.Name(), sessionID)

	return nil
}

// TurnOnImplicitWait sets the implicit wait of the active session to
// the configured duration.
func (d *Driver) TurnOnImplicitWait() error {
	return d.setImplicitWait(true)
}

// TurnOffImplicitWait sets the implicit wait of the active session to
// zero.
func (d *Driver) TurnOffImplicitWait() error {
	return d.setImplicitWait(false)
}

func (d *Driver) setImplicitWait(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser == nil {
		return ErrNotStarted
	}
	if err := d.browser.SetImplicitWait(enabled); err != nil {
		return err //nolint:wrapcheck
	}
	d.waitEnabled = enabled

	return nil
}

// ImplicitWaitEnabled reports whether the implicit wait is on.
func (d *Driver) ImplicitWaitEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.waitEnabled
}

// NoWait runs action with the implicit wait turned off. The wait is
// turned back on after action returns, fails or panics. The Driver is
// not locked while action runs, so action may use it.
func (d *Driver) NoWait(action func() error) (err error) {
	if err := d.TurnOffImplicitWait(); err != nil {
		return err
	}
	defer func() {
		// action may have closed the session.
		if werr := d.TurnOnImplicitWait(); werr != nil && !errors.Is(werr, ErrNotStarted) && err == nil {
			err = werr
		}
	}()

	return action()
}

// WebPageInitialize starts the configured default browser, Chrome when
// none is configured, and turns the implicit wait on. It then loads url
// unless url is empty.
func (d *Driver) WebPageInitialize(ctx context.Context, url string) error {
	if err := d.Start(ctx, d.opts.Browser); err != nil {
		return err
	}
	if err := d.TurnOnImplicitWait(); err != nil {
		return err
	}
	if url == "" {
		return nil
	}

	return d.Navigate(ctx, url)
}

// Navigate loads url in the active session.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser == nil {
		return ErrNotStarted
	}

	_, span := d.tracer.TraceAPICall(ctx, d.browser.WebDriver().SessionID(), "driver.navigate",
		oteltrace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	if err := d.browser.Navigate(url); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err //nolint:wrapcheck
	}

	return nil
}

// Screenshot saves a PNG of the active session's viewport to path.
func (d *Driver) Screenshot(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser == nil {
		return ErrNotStarted
	}

	return d.browser.Screenshot(ctx, path) //nolint:wrapcheck
}

// LaunchOptions returns a copy of the options the Driver launches
// browsers with.
func (d *Driver) LaunchOptions() *common.LaunchOptions {
	return d.opts.Clone()
}

// RunID returns the run ID the driver processes are registered under.
func (d *Driver) RunID() string {
	return d.runID
}
