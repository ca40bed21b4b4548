package common

import "time"

const (
	// DefaultTimeout bounds how long a driver process may take to
	// become ready.
	DefaultTimeout = 30 * time.Second

	// DefaultCommandTimeout bounds a single WebDriver command.
	DefaultCommandTimeout = 2 * time.Minute

	// DefaultImplicitWait is the implicit wait applied when it is
	// turned on.
	DefaultImplicitWait = 30 * time.Second

	// DefaultDriverVersion asks the driver manager for the newest driver.
	DefaultDriverVersion = "latest"
)
