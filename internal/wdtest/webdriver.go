// Package wdtest provides test doubles for WebDriver sessions.
package wdtest

import (
	"sync"
	"time"

	"github.com/grafana/webdriver-launcher/api"
)

var _ api.WebDriver = &WebDriver{}

// WebDriver is an in-memory api.WebDriver recording the calls made to it.
type WebDriver struct {
	mu sync.Mutex

	ID  string
	URL string
	PNG []byte

	ImplicitWait time.Duration
	Calls        []string

	// Errors returned by the named methods, as in "Close" or "Get".
	Errs map[string]error
}

// NewWebDriver returns a fake session with id.
func NewWebDriver(id string) *WebDriver {
	return &WebDriver{
		ID:   id,
		PNG:  []byte("\x89PNG\r\n\x1a\n"),
		Errs: make(map[string]error),
	}
}

func (w *WebDriver) record(call string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.Calls = append(w.Calls, call)

	return w.Errs[call]
}

// CallLog returns a copy of the recorded calls.
func (w *WebDriver) CallLog() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]string(nil), w.Calls...)
}

// SetErr makes the named method fail with err.
func (w *WebDriver) SetErr(method string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.Errs[method] = err
}

// CurrentImplicitWait returns the last implicit wait set.
func (w *WebDriver) CurrentImplicitWait() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.ImplicitWait
}

func (w *WebDriver) SessionID() string { return w.ID }

func (w *WebDriver) Get(url string) error {
	if err := w.record("Get"); err != nil {
		return err
	}
	w.mu.Lock()
	w.URL = url
	w.mu.Unlock()

	return nil
}

func (w *WebDriver) CurrentURL() (string, error) {
	if err := w.record("CurrentURL"); err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.URL, nil
}

func (w *WebDriver) Title() (string, error) {
	return "", w.record("Title")
}

func (w *WebDriver) SetImplicitWaitTimeout(timeout time.Duration) error {
	if err := w.record("SetImplicitWaitTimeout"); err != nil {
		return err
	}
	w.mu.Lock()
	w.ImplicitWait = timeout
	w.mu.Unlock()

	return nil
}

func (w *WebDriver) SetPageLoadTimeout(time.Duration) error {
	return w.record("SetPageLoadTimeout")
}

func (w *WebDriver) Screenshot() ([]byte, error) {
	if err := w.record("Screenshot"); err != nil {
		return nil, err
	}
	return w.PNG, nil
}

func (w *WebDriver) Close() error { return w.record("Close") }

func (w *WebDriver) Quit() error { return w.record("Quit") }
