package browser

import (
	"context"
	"sync"

	"github.com/grafana/webdriver-launcher/api"
)

var (
	defaultMu     sync.Mutex //nolint:gochecknoglobals
	defaultDriver *Driver    //nolint:gochecknoglobals
)

// Default returns the process-wide Driver. It is created from the
// environment on first use.
func Default() (*Driver, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultDriver != nil {
		return defaultDriver, nil
	}
	d, err := NewFromEnv(nil)
	if err != nil {
		return nil, err
	}
	defaultDriver = d

	return d, nil
}

// SetDefault replaces the process-wide Driver and returns the previous
// one, which may be nil. The previous Driver is not closed.
func SetDefault(d *Driver) *Driver {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	prev := defaultDriver
	defaultDriver = d

	return prev
}

// current returns the process-wide Driver without creating it.
func current() *Driver {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	return defaultDriver
}

// StartDriver starts the process-wide Driver with the browser named
// browserType. See Driver.Start.
func StartDriver(ctx context.Context, browserType string) error {
	d, err := Default()
	if err != nil {
		return err
	}

	return d.Start(ctx, browserType)
}

// Instance returns the session of the process-wide Driver, or nil.
func Instance() api.WebDriver {
	d := current()
	if d == nil {
		return nil
	}

	return d.Instance()
}

// Close closes the session of the process-wide Driver.
func Close() error {
	d := current()
	if d == nil {
		return ErrNotStarted
	}

	return d.Close()
}

// NoWait runs action with the implicit wait of the process-wide Driver
// turned off.
func NoWait(action func() error) error {
	d := current()
	if d == nil {
		return ErrNotStarted
	}

	return d.NoWait(action)
}

// TurnOnImplicitWait turns the implicit wait of the process-wide Driver on.
func TurnOnImplicitWait() error {
	d := current()
	if d == nil {
		return ErrNotStarted
	}

	return d.TurnOnImplicitWait()
}

// TurnOffImplicitWait turns the implicit wait of the process-wide Driver off.
func TurnOffImplicitWait() error {
	d := current()
	if d == nil {
		return ErrNotStarted
	}

	return d.TurnOffImplicitWait()
}

// WebPageInitialize starts the default browser with the process-wide
// Driver and loads url. See Driver.WebPageInitialize.
func WebPageInitialize(ctx context.Context, url string) error {
	d, err := Default()
	if err != nil {
		return err
	}

	return d.WebPageInitialize(ctx, url)
}
