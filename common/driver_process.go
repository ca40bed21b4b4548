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
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/grafana/webdriver-launcher/log"
	"github.com/grafana/webdriver-launcher/osext"
)

const readyPollInterval = 50 * time.Millisecond

// DriverArgsFunc returns the command line of a driver listening on port.
type DriverArgsFunc func(port int) []string

// DriverProcess is a running driver binary, such as chromedriver or
// geckodriver, serving the WebDriver protocol on a local port.
type DriverProcess struct {
	ctx    context.Context
	cancel context.CancelFunc

	process *os.Process

	// Closed when the process has exited and has been reaped.
	processDone chan struct{}

	port int
	url  string

	stopOnce sync.Once

	logger *log.Logger
}

// NewDriverProcess starts the driver at path and waits until it reports
// it is ready to create sessions, for at most timeout, or for as long
// as ctx allows when timeout is 0. The driver is
// killed when ctx is done. Output, if not nil, receives the driver's
// stdout and stderr.
func NewDriverProcess(
	ctx context.Context, path string, args DriverArgsFunc, env []string,
	output io.Writer, timeout time.Duration, logger *log.Logger,
) (*DriverProcess, error) {
	port, err := FreePort()
	if err != nil {
		return nil, fmt.Errorf("finding a free port for the driver: %w", err)
	}

	pctx, cancel := context.WithCancel(ctx)
	cmd, procDone, err := execute(pctx, path, args(port), env, output, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	p := DriverProcess{
		ctx:         pctx,
		cancel:      cancel,
		process:     cmd.Process,
		processDone: procDone,
		port:        port,
		url:         fmt.Sprintf("http://127.0.0.1:%d", port),
		logger:      logger,
	}

	rctx, rcancel := WithStartupTimeout(pctx, timeout)
	defer rcancel()
	if err := waitForReady(rctx, http.DefaultClient, p.url, procDone); err != nil {
		p.Stop()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w in %s: %s", ErrDriverNotReady, timeout, path)
		}
		return nil, fmt.Errorf("waiting for the driver: %w", err)
	}
	logger.Debugf("DriverProcess:start", "driver %q pid:%d ready at %s", path, p.Pid(), p.url)

	return &p, nil
}

// Stop kills the driver process and waits for it to exit.
// It's safe to call Stop more than once.
func (p *DriverProcess) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Debugf("DriverProcess:Stop", "pid:%d", p.Pid())
		p.cancel()
		<-p.processDone
	})
}

// Done returns a channel that is closed once the driver process exits.
func (p *DriverProcess) Done() <-chan struct{} {
	return p.processDone
}

// URL returns the URL prefix of the driver's WebDriver endpoint.
func (p *DriverProcess) URL() string {
	return p.url
}

// Port returns the port the driver listens on.
func (p *DriverProcess) Port() int {
	return p.port
}

// Pid returns the driver process ID.
func (p *DriverProcess) Pid() int {
	return p.process.Pid
}

func execute(
	ctx context.Context, path string, args, env []string, output io.Writer,
	logger *log.Logger,
) (*exec.Cmd, chan struct{}, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	killAfterParent(cmd)

	// Set up environment variable for process
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	if output != nil {
		cmd.Stdout = output
		cmd.Stderr = output
	}

	// We must start the cmd before calling cmd.Wait, as otherwise the two
	// can run into a data race.
	err := cmd.Start()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w", err)
	}
	if ctx.Err() != nil {
		return nil, nil, fmt.Errorf("%w", ctx.Err())
	}

	osext.Register(ctx, logger, cmd.Process.Pid)

	done := make(chan struct{})
	go func() {
		defer func() {
			osext.Unregister(ctx, cmd.Process.Pid)
			close(done)
		}()

		// A killed process is the normal way a driver ends.
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			logger.Errorf("DriverProcess",
				"process with PID %d unexpectedly ended: %v",
				cmd.Process.Pid, err)
		}
	}()

	return cmd, done, nil
}

// WithStartupTimeout bounds a start-up step by timeout. Zero means no
// bound besides ctx.
func WithStartupTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// waitForReady polls the driver's status endpoint until it reports
// ready, the process ends or ctx is done.
func waitForReady(ctx context.Context, client *http.Client, url string, procDone <-chan struct{}) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		if ready(ctx, client, url) {
			return nil
		}
		select {
		case <-procDone:
			return ErrDriverExited
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck
		case <-ticker.C:
		}
	}
}

// ready reports whether GET /status answers with a ready driver.
// Drivers that don't report readiness are ready once they answer.
func ready(ctx context.Context, client *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}
	r := gjson.GetBytes(body, "value.ready")

	return !r.Exists() || r.Bool()
}

// FreePort asks the kernel for a free local TCP port.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("%w", err)
	}
	defer func() { _ = l.Close() }()

	return l.Addr().(*net.TCPAddr).Port, nil //nolint:forcetypeassert
}
