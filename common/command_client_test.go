package common

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"
)

func TestTimeoutTransport(t *testing.T) {
	t.Parallel()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte("late"))
	}))
	t.Cleanup(slow.Close)
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64<<10)))
	}))
	t.Cleanup(fast.Close)

	timeouts := &hostTimeouts{byHost: map[string]time.Duration{}}
	timeouts.set(slow.URL, 100*time.Millisecond)
	timeouts.set(fast.URL, time.Minute)
	client := &http.Client{Transport: &timeoutTransport{base: http.DefaultTransport, timeouts: timeouts}}

	t.Run("exceeded", func(t *testing.T) {
		t.Parallel()

		_, err := client.Get(slow.URL + "/session/1/url") //nolint:noctx
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("body_readable_after_round_trip", func(t *testing.T) {
		t.Parallel()

		resp, err := client.Get(fast.URL + "/status") //nolint:noctx
		require.NoError(t, err)
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		assert.Len(t, b, 64<<10)
	})
}

func TestTimeoutTransportUnboundHost(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	timeouts := &hostTimeouts{byHost: map[string]time.Duration{}}
	timeouts.set(srv.URL, time.Millisecond)
	timeouts.forget(srv.URL)
	assert.Zero(t, timeouts.get(hostOf(srv.URL)))

	client := &http.Client{Transport: &timeoutTransport{base: http.DefaultTransport, timeouts: timeouts}}
	resp, err := client.Get(srv.URL) //nolint:noctx
	require.NoError(t, err)
	_ = resp.Body.Close()
}

func TestHostTimeoutsConcurrentSessions(t *testing.T) {
	t.Parallel()

	timeouts := &hostTimeouts{byHost: map[string]time.Duration{}}

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := "http://127.0.0.1:" + strings.Repeat("1", i%4+1)
			timeouts.set(u, time.Duration(i)*time.Second)
			_ = timeouts.get(hostOf(u))
		}(i)
	}
	wg.Wait()

	timeouts.set("http://127.0.0.1:9515", time.Second)
	timeouts.set("http://127.0.0.1:4444", time.Minute)
	assert.Equal(t, time.Second, timeouts.get("127.0.0.1:9515"))
	assert.Equal(t, time.Minute, timeouts.get("127.0.0.1:4444"))
}

func TestInstallCommandClient(t *testing.T) {
	t.Parallel()

	installCommandClient()
	installCommandClient()

	tr, ok := selenium.HTTPClient.Transport.(*timeoutTransport)
	require.True(t, ok)
	assert.Same(t, commandTimeouts, tr.timeouts)
	assert.Zero(t, selenium.HTTPClient.Timeout, "timeouts are per session")
}
