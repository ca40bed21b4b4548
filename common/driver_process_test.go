package common

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/webdriver-launcher/log"
)

const (
	helperEnv          = "WEBDRIVER_LAUNCHER_HELPER_DRIVER"
	helperDriverBanner = "helper driver starting"
)

// TestHelperDriver isn't a real test. It's re-executed by the tests below
// and acts as a driver binary answering /status on the given port.
func TestHelperDriver(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	var port string
	for _, a := range os.Args {
		if strings.HasPrefix(a, "--port=") {
			port = strings.TrimPrefix(a, "--port=")
		}
	}
	fmt.Println(helperDriverBanner)
	http.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":{"ready":true,"message":"ready"}}`))
	})
	_ = http.ListenAndServe("127.0.0.1:"+port, nil) //nolint:gosec
	os.Exit(0)
}

func helperArgs(port int) []string {
	return []string{"-test.run=^TestHelperDriver$", "--", fmt.Sprintf("--port=%d", port)}
}

func TestNewDriverProcess(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := NewDriverProcess(
		ctx, os.Args[0], helperArgs, []string{helperEnv + "=1"},
		nil, 10*time.Second, log.NewNullLogger(),
	)
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:%d", p.Port()), p.URL())
	assert.NotZero(t, p.Pid())

	p.Stop()
	p.Stop() // no-op

	select {
	case <-p.Done():
	default:
		t.Fatal("driver process didn't exit")
	}
}

func TestNewDriverProcessWithoutTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := NewDriverProcess(
		ctx, os.Args[0], helperArgs, []string{helperEnv + "=1"},
		nil, 0, log.NewNullLogger(),
	)
	require.NoError(t, err, "a zero timeout leaves the start-up unbounded")
	p.Stop()
}

func TestNewDriverProcessMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := NewDriverProcess(
		context.Background(), "/does/not/exist/chromedriver", helperArgs, nil,
		nil, time.Second, log.NewNullLogger(),
	)
	assert.EqualError(t, err, "file does not exist: /does/not/exist/chromedriver")
}

func TestWaitForReady(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		handler  func(calls int32) (int, string)
		procDone bool
		timeout  time.Duration
		assert   func(t *testing.T, err error)
	}{
		{
			name: "ok/ready",
			handler: func(int32) (int, string) {
				return http.StatusOK, `{"value":{"ready":true}}`
			},
			assert: func(t *testing.T, err error) {
				t.Helper()
				require.NoError(t, err)
			},
		},
		{
			name: "ok/ready_after_retries",
			handler: func(calls int32) (int, string) {
				if calls < 3 {
					return http.StatusOK, `{"value":{"ready":false}}`
				}
				return http.StatusOK, `{"value":{"ready":true}}`
			},
			assert: func(t *testing.T, err error) {
				t.Helper()
				require.NoError(t, err)
			},
		},
		{
			name: "ok/no_ready_field",
			handler: func(int32) (int, string) {
				return http.StatusOK, `{"value":{"build":{"version":"4.0"}}}`
			},
			assert: func(t *testing.T, err error) {
				t.Helper()
				require.NoError(t, err)
			},
		},
		{
			name: "err/not_ready_timeout",
			handler: func(int32) (int, string) {
				return http.StatusServiceUnavailable, `{}`
			},
			timeout: 200 * time.Millisecond,
			assert: func(t *testing.T, err error) {
				t.Helper()
				assert.ErrorIs(t, err, context.DeadlineExceeded)
			},
		},
		{
			name: "err/process_exited",
			handler: func(int32) (int, string) {
				return http.StatusOK, `{"value":{"ready":false}}`
			},
			procDone: true,
			assert: func(t *testing.T, err error) {
				t.Helper()
				assert.ErrorIs(t, err, ErrDriverExited)
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/status", r.URL.Path)
				code, body := tc.handler(atomic.AddInt32(&calls, 1))
				w.WriteHeader(code)
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			timeout := tc.timeout
			if timeout == 0 {
				timeout = 5 * time.Second
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			done := make(chan struct{})
			if tc.procDone {
				close(done)
			}
			tc.assert(t, waitForReady(ctx, srv.Client(), srv.URL, done))
		})
	}
}

func TestFreePort(t *testing.T) {
	t.Parallel()

	port, err := FreePort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
}

func TestWithStartupTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := WithStartupTimeout(context.Background(), 0)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)
	assert.NoError(t, ctx.Err())

	ctx, cancel = WithStartupTimeout(context.Background(), time.Minute)
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}
