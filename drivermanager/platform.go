package drivermanager

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrUnsupportedPlatform is returned when a vendor publishes no driver
// for the platform.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Platform is an operating system and architecture pair, using Go's
// GOOS and GOARCH names.
type Platform struct {
	OS   string
	Arch string
}

// CurrentPlatform returns the platform the program runs on.
func CurrentPlatform() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// IsWindows reports whether p is a Windows platform.
func (p Platform) IsWindows() bool {
	return p.OS == "windows"
}

// executable returns name with the platform's executable extension.
func (p Platform) executable(name string) string {
	if p.IsWindows() {
		return name + ".exe"
	}
	return name
}

// lookup maps p to a vendor specific name with table.
func (p Platform) lookup(vendor string, table map[Platform]string) (string, error) {
	if n, ok := table[p]; ok {
		return n, nil
	}
	return "", fmt.Errorf("%s: %w %s", vendor, ErrUnsupportedPlatform, p)
}
