package api

import (
	"time"

	"github.com/tebeka/selenium"
)

// WebDriver is the public interface of an active WebDriver session.
// selenium.WebDriver implements it.
type WebDriver interface {
	SessionID() string
	Get(url string) error
	CurrentURL() (string, error)
	Title() (string, error)
	SetImplicitWaitTimeout(timeout time.Duration) error
	SetPageLoadTimeout(timeout time.Duration) error
	Screenshot() ([]byte, error)
	Close() error
	Quit() error
}

// Ensure selenium's remote client keeps satisfying WebDriver.
var _ WebDriver = selenium.WebDriver(nil)
