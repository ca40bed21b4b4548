package common

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tebeka/selenium"
)

// The selenium client sends every command through the package-wide
// selenium.HTTPClient. It is installed once and bounds each request by
// the command timeout of the session whose driver it is addressed to.
var (
	commandClientOnce sync.Once                                          //nolint:gochecknoglobals
	commandTimeouts   = &hostTimeouts{byHost: map[string]time.Duration{}} //nolint:gochecknoglobals
)

func installCommandClient() {
	commandClientOnce.Do(func() {
		selenium.HTTPClient = &http.Client{
			Transport: &timeoutTransport{base: http.DefaultTransport, timeouts: commandTimeouts},
		}
	})
}

// hostTimeouts maps a driver's host:port to its command timeout.
type hostTimeouts struct {
	mu     sync.RWMutex
	byHost map[string]time.Duration
}

func (h *hostTimeouts) set(driverURL string, d time.Duration) {
	host := hostOf(driverURL)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byHost[host] = d
}

func (h *hostTimeouts) forget(driverURL string) {
	host := hostOf(driverURL)
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byHost, host)
}

func (h *hostTimeouts) get(host string) time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byHost[host]
}

func hostOf(driverURL string) string {
	u, err := url.Parse(driverURL)
	if err != nil {
		return driverURL
	}
	return u.Host
}

// timeoutTransport applies the timeout registered for a request's host.
// Hosts without one, or with zero, are not bounded.
type timeoutTransport struct {
	base     http.RoundTripper
	timeouts *hostTimeouts
}

func (t *timeoutTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	d := t.timeouts.get(req.URL.Host)
	if d <= 0 {
		return t.base.RoundTrip(req) //nolint:wrapcheck
	}

	ctx, cancel := context.WithTimeout(req.Context(), d)
	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err //nolint:wrapcheck
	}
	// The body is read after RoundTrip returns.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}

	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close() //nolint:wrapcheck
}
