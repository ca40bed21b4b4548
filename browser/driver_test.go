package browser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/grafana/webdriver-launcher/common"
	"github.com/grafana/webdriver-launcher/drivermanager"
	"github.com/grafana/webdriver-launcher/internal/wdtest"
	"github.com/grafana/webdriver-launcher/log"
	"github.com/grafana/webdriver-launcher/trace"
)

// fakeBrowserType launches in-memory sessions.
type fakeBrowserType struct {
	name common.BrowserName

	mu       sync.Mutex
	launched []*common.LaunchOptions
	wds      []*wdtest.WebDriver
	err      error
}

func (f *fakeBrowserType) Name() common.BrowserName { return f.name }

func (f *fakeBrowserType) DriverName() string { return "fakedriver" }

func (f *fakeBrowserType) Capabilities(*common.LaunchOptions) (selenium.Capabilities, error) {
	return selenium.Capabilities{"browserName": f.name.String()}, nil
}

func (f *fakeBrowserType) DriverArgs(int, *common.LaunchOptions) ([]string, bool) {
	return nil, false
}

func (f *fakeBrowserType) Launch(_ context.Context, opts *common.LaunchOptions, logger *log.Logger) (*common.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	f.launched = append(f.launched, opts)
	wd := wdtest.NewWebDriver(fmt.Sprintf("%s-%d", f.name, len(f.launched)))
	f.wds = append(f.wds, wd)

	b := common.NewBrowser(f.name, wd, opts, logger)
	if err := b.SetImplicitWait(true); err != nil {
		return nil, err
	}

	return b, nil
}

func (f *fakeBrowserType) launches() []*common.LaunchOptions {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*common.LaunchOptions(nil), f.launched...)
}

func (f *fakeBrowserType) lastWebDriver() *wdtest.WebDriver {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.wds) == 0 {
		return nil
	}
	return f.wds[len(f.wds)-1]
}

// fakeInstaller records the drivers it was asked to set up.
type fakeInstaller struct {
	mu      sync.Mutex
	calls   []string
	err     error
	baseDir string
}

func (f *fakeInstaller) SetUpDriver(_ context.Context, cfg drivermanager.Config, version string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, cfg.Name()+"@"+version)
	if f.err != nil {
		return "", f.err
	}

	return filepath.Join(f.baseDir, cfg.Name()), nil
}

func (f *fakeInstaller) setUps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

type testDriver struct {
	*Driver
	types     map[common.BrowserName]*fakeBrowserType
	installer *fakeInstaller
}

func newTestDriver(t *testing.T, mod func(*Options)) *testDriver {
	t.Helper()

	td := &testDriver{
		types:     make(map[common.BrowserName]*fakeBrowserType),
		installer: &fakeInstaller{baseDir: "/drivers"},
	}
	reg := make(Registry)
	for name, v := range DefaultRegistry() {
		bt := &fakeBrowserType{name: name}
		td.types[name] = bt
		reg[name] = Vendor{BrowserType: bt, Driver: v.Driver}
	}
	opts := Options{
		Registry:  reg,
		Installer: td.installer,
		LookupEnv: func(string) (string, bool) { return "", false },
	}
	if mod != nil {
		mod(&opts)
	}
	td.Driver = New(opts)
	t.Cleanup(func() { _ = td.Close() })

	return td
}

func TestDriverStartSelectsVendor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input      string
		wantName   common.BrowserName
		wantDriver string
	}{
		{input: "", wantName: common.Chrome, wantDriver: "chromedriver"},
		{input: "chrome", wantName: common.Chrome, wantDriver: "chromedriver"},
		{input: "safari", wantName: common.Chrome, wantDriver: "chromedriver"},
		{input: "edge", wantName: common.Edge, wantDriver: "msedgedriver"},
		{input: "IE", wantName: common.InternetExplorer, wantDriver: "IEDriverServer"},
		{input: "firefox", wantName: common.Firefox, wantDriver: "geckodriver"},
		{input: "FireFox", wantName: common.Firefox, wantDriver: "geckodriver"},
		{input: "opera", wantName: common.Opera, wantDriver: "operadriver"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			t.Parallel()

			td := newTestDriver(t, nil)
			require.NoError(t, td.Start(context.Background(), tt.input))

			for name, bt := range td.types {
				if name == tt.wantName {
					require.Len(t, bt.launches(), 1)
					continue
				}
				assert.Empty(t, bt.launches(), "%s should not be launched", name)
			}
			assert.Equal(t, []string{tt.wantDriver + "@latest"}, td.installer.setUps())

			opts := td.types[tt.wantName].launches()[0]
			assert.Equal(t, filepath.Join("/drivers", tt.wantDriver), opts.DriverPath)

			wd := td.Instance()
			require.NotNil(t, wd)
			assert.Equal(t, fmt.Sprintf("%s-1", tt.wantName), wd.SessionID())
			assert.Equal(t, tt.wantName.String(), td.Browser().Name())
			assert.True(t, td.ImplicitWaitEnabled())
		})
	}
}

func TestDriverStartAlreadyStarted(t *testing.T) {
	t.Parallel()

	td := newTestDriver(t, nil)
	ctx := context.Background()
	require.NoError(t, td.Start(ctx, "chrome"))
	first := td.Instance()

	err := td.Start(ctx, "firefox")
	require.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Same(t, first, td.Instance())
	assert.Empty(t, td.types[common.Firefox].launches())
	assert.NotContains(t, td.types[common.Chrome].lastWebDriver().CallLog(), "Quit")
}

func TestDriverStartConcurrently(t *testing.T) {
	t.Parallel()

	td := newTestDriver(t, nil)

	const n = 8
	var (
		wg   sync.WaitGroup
		errs = make(chan error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- td.Start(context.Background(), "chrome")
		}()
	}
	wg.Wait()
	close(errs)

	var started int
	for err := range errs {
		if err == nil {
			started++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyStarted)
	}
	assert.Equal(t, 1, started)
	assert.Len(t, td.types[common.Chrome].launches(), 1)
}

func TestDriverStartDriverPath(t *testing.T) {
	t.Parallel()

	lopts := common.NewLaunchOptions()
	lopts.DriverPath = "/usr/local/bin/chromedriver"
	td := newTestDriver(t, func(o *Options) { o.LaunchOptions = lopts })

	require.NoError(t, td.Start(context.Background(), "chrome"))
	assert.Empty(t, td.installer.setUps())
	assert.Equal(t, "/usr/local/bin/chromedriver", td.types[common.Chrome].launches()[0].DriverPath)
}

func TestDriverStartPinnedVersion(t *testing.T) {
	t.Parallel()

	lopts := common.NewLaunchOptions()
	lopts.DriverVersion = "0.34.0"
	td := newTestDriver(t, func(o *Options) { o.LaunchOptions = lopts })

	require.NoError(t, td.Start(context.Background(), "firefox"))
	assert.Equal(t, []string{"geckodriver@0.34.0"}, td.installer.setUps())
	assert.Empty(t, lopts.DriverPath, "the driver's options must not change")
}

func TestDriverStartErrors(t *testing.T) {
	t.Parallel()

	t.Run("set_up", func(t *testing.T) {
		t.Parallel()

		td := newTestDriver(t, nil)
		errDownload := errors.New("download failed")
		td.installer.err = errDownload

		err := td.Start(context.Background(), "edge")
		require.ErrorIs(t, err, errDownload)
		assert.ErrorContains(t, err, "setting up msedgedriver")
		assert.Nil(t, td.Instance())
		assert.Empty(t, td.types[common.Edge].launches())
	})

	t.Run("launch", func(t *testing.T) {
		t.Parallel()

		td := newTestDriver(t, nil)
		errLaunch := errors.New("session not created")
		td.types[common.Opera].err = errLaunch

		err := td.Start(context.Background(), "opera")
		require.ErrorIs(t, err, errLaunch)
		assert.Nil(t, td.Instance())
		assert.Nil(t, td.Browser())
	})

	t.Run("unregistered", func(t *testing.T) {
		t.Parallel()

		td := newTestDriver(t, func(o *Options) {
			delete(o.Registry, common.InternetExplorer)
		})

		err := td.Start(context.Background(), "IE")
		require.ErrorIs(t, err, ErrUnknownBrowser)
	})

	t.Run("run_disabled", func(t *testing.T) {
		t.Parallel()

		env := map[string]string{
			"WEBDRIVER_DISABLE_RUN":     "",
			"WEBDRIVER_DISABLE_RUN_MSG": "maintenance",
		}
		td := newTestDriver(t, func(o *Options) { o.LookupEnv = lookupFunc(env) })

		err := td.Start(context.Background(), "chrome")
		require.ErrorIs(t, err, ErrRunDisabled)
		assert.ErrorContains(t, err, "maintenance")
		assert.Empty(t, td.types[common.Chrome].launches())
	})
}

func TestDriverClose(t *testing.T) {
	t.Parallel()

	td := newTestDriver(t, nil)
	ctx := context.Background()

	require.ErrorIs(t, td.Close(), ErrNotStarted)

	require.NoError(t, td.Start(ctx, "chrome"))
	wd := td.types[common.Chrome].lastWebDriver()
	require.NoError(t, td.Close())
	assert.Equal(t, []string{"SetImplicitWaitTimeout", "Close", "Quit"}, wd.CallLog())
	assert.Nil(t, td.Instance())
	assert.False(t, td.ImplicitWaitEnabled())
	require.ErrorIs(t, td.Close(), ErrNotStarted)

	// A closed driver can start again.
	require.NoError(t, td.Start(ctx, "chrome"))
	assert.Equal(t, "chrome-2", td.Instance().SessionID())
}

func TestDriverCloseError(t *testing.T) {
	t.Parallel()

	td := newTestDriver(t, nil)
	require.NoError(t, td.Start(context.Background(), "firefox"))

	errWindow := errors.New("no such window")
	td.types[common.Firefox].lastWebDriver().SetErr("Close", errWindow)

	err := td.Close()
	require.ErrorIs(t, err, errWindow)
	assert.Nil(t, td.Instance(), "the handle is cleared even if closing fails")
}

func TestDriverImplicitWait(t *testing.T) {
	t.Parallel()

	lopts := common.NewLaunchOptions()
	td := newTestDriver(t, func(o *Options) { o.LaunchOptions = lopts })

	require.ErrorIs(t, td.TurnOnImplicitWait(), ErrNotStarted)
	require.ErrorIs(t, td.TurnOffImplicitWait(), ErrNotStarted)

	require.NoError(t, td.Start(context.Background(), "chrome"))
	wd := td.types[common.Chrome].lastWebDriver()
	assert.Equal(t, 30*time.Second, wd.CurrentImplicitWait())

	require.NoError(t, td.TurnOffImplicitWait())
	assert.Equal(t, time.Duration(0), wd.CurrentImplicitWait())
	assert.False(t, td.ImplicitWaitEnabled())

	require.NoError(t, td.TurnOnImplicitWait())
	assert.Equal(t, common.DefaultImplicitWait, wd.CurrentImplicitWait())
	assert.True(t, td.ImplicitWaitEnabled())

	errTimeouts := errors.New("invalid session id")
	wd.SetErr("SetImplicitWaitTimeout", errTimeouts)
	require.ErrorIs(t, td.TurnOffImplicitWait(), errTimeouts)
	assert.True(t, td.ImplicitWaitEnabled(), "a failed change keeps the previous state")
}

func TestDriverNoWait(t *testing.T) {
	t.Parallel()

	start := func(t *testing.T) (*testDriver, *wdtest.WebDriver) {
		t.Helper()

		td := newTestDriver(t, nil)
		require.NoError(t, td.Start(context.Background(), "chrome"))

		return td, td.types[common.Chrome].lastWebDriver()
	}

	t.Run("restores", func(t *testing.T) {
		t.Parallel()

		td, wd := start(t)
		var during time.Duration
		err := td.NoWait(func() error {
			during = wd.CurrentImplicitWait()
			assert.False(t, td.ImplicitWaitEnabled())
			assert.NotNil(t, td.Instance(), "the driver stays usable inside the action")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, time.Duration(0), during)
		assert.Equal(t, common.DefaultImplicitWait, wd.CurrentImplicitWait())
		assert.True(t, td.ImplicitWaitEnabled())
	})

	t.Run("action_error", func(t *testing.T) {
		t.Parallel()

		td, wd := start(t)
		errAction := errors.New("element not found")
		err := td.NoWait(func() error { return errAction })
		require.ErrorIs(t, err, errAction)
		assert.Equal(t, common.DefaultImplicitWait, wd.CurrentImplicitWait())
	})

	t.Run("action_panic", func(t *testing.T) {
		t.Parallel()

		td, wd := start(t)
		assert.PanicsWithValue(t, "boom", func() {
			_ = td.NoWait(func() error { panic("boom") })
		})
		assert.Equal(t, common.DefaultImplicitWait, wd.CurrentImplicitWait())
		assert.True(t, td.ImplicitWaitEnabled())
	})

	t.Run("action_closes", func(t *testing.T) {
		t.Parallel()

		td, _ := start(t)
		require.NoError(t, td.NoWait(td.Close))
		assert.Nil(t, td.Instance())
	})

	t.Run("not_started", func(t *testing.T) {
		t.Parallel()

		td := newTestDriver(t, nil)
		var called bool
		err := td.NoWait(func() error { called = true; return nil })
		require.ErrorIs(t, err, ErrNotStarted)
		assert.False(t, called)
	})
}

func TestDriverWebPageInitialize(t *testing.T) {
	t.Parallel()

	t.Run("default_browser", func(t *testing.T) {
		t.Parallel()

		td := newTestDriver(t, nil)
		require.NoError(t, td.WebPageInitialize(context.Background(), "https://grafana.com"))

		wd := td.types[common.Chrome].lastWebDriver()
		require.NotNil(t, wd)
		assert.Equal(t, "https://grafana.com", wd.URL)
		assert.True(t, td.ImplicitWaitEnabled())
		assert.Equal(t, common.DefaultImplicitWait, wd.CurrentImplicitWait())
	})

	t.Run("configured_browser", func(t *testing.T) {
		t.Parallel()

		lopts := common.NewLaunchOptions()
		lopts.Browser = "firefox"
		td := newTestDriver(t, func(o *Options) { o.LaunchOptions = lopts })
		require.NoError(t, td.WebPageInitialize(context.Background(), ""))

		wd := td.types[common.Firefox].lastWebDriver()
		require.NotNil(t, wd)
		assert.NotContains(t, wd.CallLog(), "Get")
	})

	t.Run("navigation_error", func(t *testing.T) {
		t.Parallel()

		td := newTestDriver(t, nil)
		errNav := errors.New("net::ERR_NAME_NOT_RESOLVED")
		require.NoError(t, td.Start(context.Background(), ""))
		td.types[common.Chrome].lastWebDriver().SetErr("Get", errNav)

		require.ErrorIs(t, td.Navigate(context.Background(), "https://invalid.test"), errNav)
	})

	t.Run("already_started", func(t *testing.T) {
		t.Parallel()

		td := newTestDriver(t, nil)
		require.NoError(t, td.WebPageInitialize(context.Background(), ""))
		require.ErrorIs(t, td.WebPageInitialize(context.Background(), ""), ErrAlreadyStarted)
	})
}

func TestDriverScreenshot(t *testing.T) {
	t.Parallel()

	td := newTestDriver(t, nil)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "page.png")

	require.ErrorIs(t, td.Screenshot(ctx, path), ErrNotStarted)

	require.NoError(t, td.Start(ctx, "edge"))
	require.NoError(t, td.Screenshot(ctx, path))
	assert.FileExists(t, path)
}

func TestDriverTracing(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	logger, _ := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	tracer := trace.NewTracer(logger, tp, map[string]string{"run": "test"})

	td := newTestDriver(t, func(o *Options) { o.Tracer = tracer })
	ctx := context.Background()
	require.NoError(t, td.WebPageInitialize(ctx, "https://grafana.com"))
	sessionID := td.Instance().SessionID()
	assert.Equal(t, []string{sessionID}, tracer.LiveSessions())
	require.NoError(t, td.Close())
	assert.Empty(t, tracer.LiveSessions())

	var names []string
	spans := make(map[string]sdktrace.ReadOnlySpan)
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
		spans[s.Name()] = s
	}
	assert.Equal(t, []string{"driver.setup", "driver.start", "driver.navigate", "driver.close", "session"}, names)

	session := spans["session"]
	assert.Equal(t, session.SpanContext().SpanID(), spans["driver.navigate"].Parent().SpanID())
	assert.Equal(t, session.SpanContext().SpanID(), spans["driver.close"].Parent().SpanID())
	assert.Equal(t, spans["driver.start"].SpanContext().SpanID(), spans["driver.setup"].Parent().SpanID())
}
