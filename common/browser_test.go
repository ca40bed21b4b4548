package common

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/webdriver-launcher/internal/wdtest"
	"github.com/grafana/webdriver-launcher/log"
)

func newTestBrowser(t *testing.T) (*Browser, *wdtest.WebDriver) {
	t.Helper()

	wd := wdtest.NewWebDriver("session-1")
	return NewBrowser(Chrome, wd, NewLaunchOptions(), log.NewNullLogger()), wd
}

func TestBrowserClose(t *testing.T) {
	t.Parallel()

	t.Run("order", func(t *testing.T) {
		t.Parallel()

		b, wd := newTestBrowser(t)
		var disposed []string
		b.OnDispose(func() error { disposed = append(disposed, "first"); return nil })
		b.OnDispose(func() error { disposed = append(disposed, "second"); return nil })

		require.NoError(t, b.Close())
		assert.Equal(t, []string{"Close", "Quit"}, wd.CallLog())
		assert.Equal(t, []string{"second", "first"}, disposed)
		assert.True(t, b.IsClosed())

		require.NoError(t, b.Close())
		assert.Len(t, wd.CallLog(), 2, "second close should be a no-op")
	})

	t.Run("errors_joined", func(t *testing.T) {
		t.Parallel()

		b, wd := newTestBrowser(t)
		errWindow := errors.New("no such window")
		errDispose := errors.New("dispose failed")
		wd.SetErr("Close", errWindow)
		b.OnDispose(func() error { return errDispose })

		err := b.Close()
		assert.ErrorIs(t, err, errWindow)
		assert.ErrorIs(t, err, errDispose)
		assert.Equal(t, []string{"Close", "Quit"}, wd.CallLog(), "quit runs even if closing the window fails")
	})

	t.Run("quit_error_ignored", func(t *testing.T) {
		t.Parallel()

		b, wd := newTestBrowser(t)
		wd.SetErr("Quit", errors.New("invalid session id"))
		disposed := false
		b.OnDispose(func() error { disposed = true; return nil })

		assert.NoError(t, b.Close())
		assert.True(t, disposed)
	})
}

func TestBrowserSetImplicitWait(t *testing.T) {
	t.Parallel()

	b, wd := newTestBrowser(t)

	require.NoError(t, b.SetImplicitWait(true))
	assert.Equal(t, 30*time.Second, wd.CurrentImplicitWait())

	require.NoError(t, b.SetImplicitWait(false))
	assert.Equal(t, time.Duration(0), wd.CurrentImplicitWait())

	wd.SetErr("SetImplicitWaitTimeout", errors.New("boom"))
	assert.ErrorContains(t, b.SetImplicitWait(true), "setting implicit wait to 30s: boom")
}

func TestBrowserNavigate(t *testing.T) {
	t.Parallel()

	b, wd := newTestBrowser(t)

	require.NoError(t, b.Navigate("https://example.com"))
	url, err := wd.CurrentURL()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", url)
	assert.Equal(t, "chrome", b.Name())
	assert.Same(t, wd, b.WebDriver())

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Navigate("https://example.com"), ErrBrowserClosed)
	assert.ErrorIs(t, b.SetImplicitWait(true), ErrBrowserClosed)
}

func TestBrowserScreenshot(t *testing.T) {
	t.Parallel()

	b, wd := newTestBrowser(t)
	path := filepath.Join(t.TempDir(), "shots", "page.png")

	require.NoError(t, b.Screenshot(context.Background(), path))
	data, err := os.ReadFile(path) //nolint:gosec
	require.NoError(t, err)
	assert.Equal(t, wd.PNG, data)

	assert.ErrorContains(t, b.Screenshot(context.Background(), "page.jpg"), "unsupported screenshot file extension")
}
