package api

import "context"

// Browser is the public interface of a launched browser: a WebDriver
// session together with the driver process serving it.
type Browser interface {
	Close() error
	Name() string
	Navigate(url string) error
	Screenshot(ctx context.Context, path string) error
	SetImplicitWait(enabled bool) error
	WebDriver() WebDriver
}
