package common

import "errors"

var (
	// ErrThrottlingUnsupported is returned when a network profile is
	// requested for a browser that doesn't speak CDP.
	ErrThrottlingUnsupported = errors.New("network throttling is only supported by Chromium based browsers")

	// ErrDriverNotReady is returned when a driver process doesn't
	// report ready before the launch timeout.
	ErrDriverNotReady = errors.New("driver did not become ready")

	// ErrDriverExited is returned when a driver process ends before
	// it becomes ready.
	ErrDriverExited = errors.New("driver process ended unexpectedly")

	// ErrBrowserClosed is returned by operations on a closed browser.
	ErrBrowserClosed = errors.New("browser is closed")
)
