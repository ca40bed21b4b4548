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
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tebeka/selenium"

	"github.com/grafana/webdriver-launcher/api"
	"github.com/grafana/webdriver-launcher/log"
)

// BrowserType knows how to configure and launch one browser vendor.
type BrowserType interface {
	// Name returns the browser the type launches.
	Name() BrowserName
	// DriverName returns the file name of the driver binary, without
	// any platform specific extension.
	DriverName() string
	// Capabilities returns the capabilities requested for a new session.
	Capabilities(opts *LaunchOptions) (selenium.Capabilities, error)
	// DriverArgs returns the driver command line for port. When
	// captureOutput is set, the driver logs to its standard output and
	// the output is written to the driver log file.
	DriverArgs(port int, opts *LaunchOptions) (args []string, captureOutput bool)
	// Launch starts the driver and creates a new session.
	Launch(ctx context.Context, opts *LaunchOptions, logger *log.Logger) (*Browser, error)
}

// RemoteFunc creates a WebDriver session at the driver serving urlPrefix.
type RemoteFunc func(caps selenium.Capabilities, urlPrefix string, commandTimeout time.Duration) (api.WebDriver, error)

// NewRemote creates WebDriver sessions for LaunchBrowser. Commands of
// each session are bounded by its own commandTimeout, even though the
// selenium client is shared by the whole process.
// Tests replace it to avoid talking to a real driver.
var NewRemote RemoteFunc = func( //nolint:gochecknoglobals
	caps selenium.Capabilities, urlPrefix string, commandTimeout time.Duration,
) (api.WebDriver, error) {
	installCommandClient()
	commandTimeouts.set(urlPrefix, commandTimeout)

	wd, err := selenium.NewRemote(caps, urlPrefix)
	if err != nil {
		commandTimeouts.forget(urlPrefix)
		return nil, fmt.Errorf("%w", err)
	}

	return wd, nil
}

// LaunchBrowser runs the launch sequence shared by every browser type:
// it starts the driver process, creates a session with the capabilities
// of bt and wraps both in a Browser. ctx bounds the lifetime of the
// driver process.
func LaunchBrowser(ctx context.Context, bt BrowserType, opts *LaunchOptions, logger *log.Logger) (_ *Browser, err error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid launch options: %w", err)
	}

	if opts.NetworkProfile != "" && !bt.Name().IsChromium() {
		return nil, fmt.Errorf("%s: %w", bt.Name(), ErrThrottlingUnsupported)
	}

	driverPath, err := resolveDriverPath(bt, opts)
	if err != nil {
		return nil, err
	}

	caps, err := bt.Capabilities(opts)
	if err != nil {
		return nil, fmt.Errorf("building %s capabilities: %w", bt.Name(), err)
	}

	var (
		output        *os.File
		captureOutput bool
	)
	_, captureOutput = bt.DriverArgs(0, opts)
	if captureOutput && opts.DriverLogPath != "" {
		if output, err = openDriverLog(opts.DriverLogPath); err != nil {
			return nil, err
		}
		defer func() {
			if err != nil {
				_ = output.Close()
			}
		}()
	}

	var (
		w           io.Writer
		closeOutput func() error
	)
	switch {
	case output != nil:
		w, closeOutput = output, output.Close
	case captureOutput && logger.DebugMode():
		// Without a log file the driver output goes to the debug log.
		pw := logger.Logger.WriterLevel(logrus.DebugLevel)
		w, closeOutput = pw, pw.Close
		defer func() {
			if err != nil {
				_ = pw.Close()
			}
		}()
	}
	proc, err := NewDriverProcess(ctx, driverPath, func(port int) []string {
		args, _ := bt.DriverArgs(port, opts)
		return args
	}, opts.EnvList(), w, opts.Timeout, logger)
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", bt.DriverName(), err)
	}

	wd, err := NewRemote(caps, proc.URL(), opts.CommandTimeout)
	if err != nil {
		proc.Stop()
		return nil, fmt.Errorf("creating %s session: %w", bt.Name(), err)
	}
	logger.Infof("Browser:Launch", "%s session %s started by %s", bt.Name(), wd.SessionID(), driverPath)

	b := NewBrowser(bt.Name(), wd, opts, logger)
	if closeOutput != nil {
		b.OnDispose(closeOutput)
	}
	b.OnDispose(func() error {
		commandTimeouts.forget(proc.URL())
		proc.Stop()
		return nil
	})

	if err := b.SetImplicitWait(true); err != nil {
		_ = b.Close()
		return nil, err
	}

	return b, nil
}

// resolveDriverPath returns the configured driver path or, when there is
// none, the driver found in PATH.
func resolveDriverPath(bt BrowserType, opts *LaunchOptions) (string, error) {
	if opts.DriverPath != "" {
		return opts.DriverPath, nil
	}
	path, err := exec.LookPath(bt.DriverName())
	if err != nil {
		return "", fmt.Errorf("%s not configured and not found in PATH: %w", bt.DriverName(), err)
	}

	return path, nil
}

func openDriverLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating driver log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("opening driver log: %w", err)
	}

	return f, nil
}
