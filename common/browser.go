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
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/grafana/webdriver-launcher/api"
	"github.com/grafana/webdriver-launcher/log"
	"github.com/grafana/webdriver-launcher/storage"
)

// Ensure Browser implements the api.Browser interface.
var _ api.Browser = &Browser{}

const (
	BrowserStateOpen int64 = iota
	BrowserStateClosing
	BrowserStateClosed
)

// Browser is a WebDriver session together with the resources that
// were set up to serve it, such as the driver process.
type Browser struct {
	name BrowserName

	state int64

	wd         api.WebDriver
	launchOpts *LaunchOptions

	screenshotter *Screenshotter

	disposeMu sync.Mutex
	disposers []func() error

	logger *log.Logger
}

// NewBrowser wraps an established WebDriver session.
func NewBrowser(name BrowserName, wd api.WebDriver, opts *LaunchOptions, logger *log.Logger) *Browser {
	return &Browser{
		name:          name,
		state:         BrowserStateOpen,
		wd:            wd,
		launchOpts:    opts,
		screenshotter: NewScreenshotter(&storage.LocalFilePersister{Mode: 0o644}),
		logger:        logger,
	}
}

// OnDispose registers fn to run when the browser is closed, after the
// session has ended. Disposers run in reverse registration order.
func (b *Browser) OnDispose(fn func() error) {
	b.disposeMu.Lock()
	defer b.disposeMu.Unlock()

	b.disposers = append(b.disposers, fn)
}

// Close closes the current window, quits the session and releases every
// resource held for it. Only the first call does any work.
func (b *Browser) Close() error {
	if !atomic.CompareAndSwapInt64(&b.state, BrowserStateOpen, BrowserStateClosing) {
		b.logger.Debugf("Browser:Close", "already closed")
		return nil
	}
	defer atomic.StoreInt64(&b.state, BrowserStateClosed)

	b.logger.Debugf("Browser:Close", "session:%s", b.wd.SessionID())

	var errs []error
	if err := b.wd.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing window: %w", err))
	}
	// The session usually ends with its last window.
	if err := b.wd.Quit(); err != nil {
		b.logger.Debugf("Browser:Close", "quitting session: %v", err)
	}

	b.disposeMu.Lock()
	disposers := b.disposers
	b.disposers = nil
	b.disposeMu.Unlock()

	for i := len(disposers) - 1; i >= 0; i-- {
		if err := disposers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// IsClosed reports whether Close has been called.
func (b *Browser) IsClosed() bool {
	return atomic.LoadInt64(&b.state) != BrowserStateOpen
}

// Name returns the browser name, as in chrome or firefox.
func (b *Browser) Name() string {
	return b.name.String()
}

// Navigate loads url in the current window.
func (b *Browser) Navigate(url string) error {
	if b.IsClosed() {
		return ErrBrowserClosed
	}
	if err := b.wd.Get(url); err != nil {
		return fmt.Errorf("navigating to %q: %w", url, err)
	}

	return nil
}

// Screenshot saves a PNG of the current viewport to path.
func (b *Browser) Screenshot(ctx context.Context, path string) error {
	if b.IsClosed() {
		return ErrBrowserClosed
	}
	_, err := b.screenshotter.Screenshot(ctx, b.wd, path)

	return err
}

// SetImplicitWait sets the session's implicit wait to the launch
// option's value when enabled, and to zero otherwise.
func (b *Browser) SetImplicitWait(enabled bool) error {
	if b.IsClosed() {
		return ErrBrowserClosed
	}
	var d = b.launchOpts.ImplicitWait
	if !enabled {
		d = 0
	}
	if err := b.wd.SetImplicitWaitTimeout(d); err != nil {
		return fmt.Errorf("setting implicit wait to %s: %w", d, err)
	}

	return nil
}

// WebDriver returns the underlying WebDriver session.
func (b *Browser) WebDriver() api.WebDriver {
	return b.wd
}

// LaunchOptions returns the options the browser was launched with.
func (b *Browser) LaunchOptions() *LaunchOptions {
	return b.launchOpts
}
