package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/grafana/webdriver-launcher/browser"
	"github.com/grafana/webdriver-launcher/common"
	"github.com/grafana/webdriver-launcher/osext"
)

type cmdOpen struct {
	gs *globalState

	headless       bool
	networkProfile string
	driverPath     string
	driverVersion  string
	executablePath string
	args           []string
	screenshot     string
	duration       time.Duration
}

func getCmdOpen(gs *globalState) *cobra.Command {
	c := &cmdOpen{gs: gs}

	cmd := &cobra.Command{
		Use:   "open [browser] [url]",
		Short: "Launch a browser and keep it open",
		Long: `Launch a browser through its WebDriver, load a page and keep the
session open until the command is interrupted or the duration elapses.`,
		Example: `  webdriver-launcher open
  webdriver-launcher open firefox https://grafana.com --headless --duration 10s
  webdriver-launcher open chrome https://grafana.com --network-profile "Slow 3G"`,
		Args: cobra.MaximumNArgs(2),
		RunE: c.run,
	}
	cmd.Flags().AddFlagSet(c.flagSet())

	return cmd
}

func (c *cmdOpen) flagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.BoolVar(&c.headless, "headless", false, "run the browser without a window")
	flags.StringVar(&c.networkProfile, "network-profile", "", "throttle the network, see the profiles command")
	flags.StringVar(&c.driverPath, "driver-path", "", "use this driver binary instead of setting one up")
	flags.StringVar(&c.driverVersion, "driver-version", "", `driver version (default "latest")`)
	flags.StringVar(&c.executablePath, "executable-path", "", "browser binary")
	flags.StringArrayVar(&c.args, "arg", nil, "extra browser argument, can be repeated")
	flags.StringVar(&c.screenshot, "screenshot", "", "save a PNG screenshot of the page to this path")
	flags.DurationVar(&c.duration, "duration", 0, "close the browser after this long, wait for an interrupt when 0")

	return flags
}

// launchOptions applies the flags set on the command line.
func (c *cmdOpen) launchOptions(flags *pflag.FlagSet) *common.LaunchOptions {
	lopts := c.gs.launchOpts.Clone()
	if flags.Changed("headless") {
		lopts.Headless = c.headless
	}
	if flags.Changed("network-profile") {
		lopts.NetworkProfile = c.networkProfile
	}
	if flags.Changed("driver-path") {
		lopts.DriverPath = c.driverPath
	}
	if flags.Changed("driver-version") {
		lopts.DriverVersion = c.driverVersion
	}
	if flags.Changed("executable-path") {
		lopts.ExecutablePath = c.executablePath
	}
	lopts.Args = append(lopts.Args, c.args...)

	return lopts
}

func (c *cmdOpen) run(cmd *cobra.Command, args []string) (err error) {
	lopts := c.launchOptions(cmd.Flags())
	if err := lopts.Validate(); err != nil {
		return exitCodeError{error: fmt.Errorf("invalid launch options: %w", err), code: invalidConfigErrorCode}
	}
	name := lopts.Browser
	if len(args) > 0 {
		name = args[0]
	}
	var url string
	if len(args) > 1 {
		url = args[1]
	}

	var installer browser.Installer
	if lopts.DriverPath == "" {
		mgr, err := browser.NewManagerFromEnv(lopts, c.gs.logger, c.gs.env)
		if err != nil {
			return err //nolint:wrapcheck
		}
		installer = mgr
	}
	tracer, shutdown, err := c.gs.newTracer(c.gs.ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	d := browser.New(browser.Options{
		LaunchOptions: lopts,
		Installer:     installer,
		Logger:        c.gs.logger,
		Tracer:        tracer,
		RunID:         c.gs.runID,
		LookupEnv:     c.gs.lookupEnv,
	})

	// The driver process lives as long as gs.ctx, interrupts only end
	// the wait below so that the session can be closed cleanly.
	if err := d.Start(c.gs.ctx, name); err != nil {
		c.forceShutdown()
		if errors.Is(err, browser.ErrRunDisabled) {
			return exitCodeError{error: err, code: runDisabledErrorCode}
		}
		return err //nolint:wrapcheck
	}
	defer func() {
		if cerr := d.Close(); cerr != nil {
			c.forceShutdown()
			err = errors.Join(err, cerr)
		}
	}()

	wd := d.Instance()
	c.gs.console.printf("%s %s session %s\n", c.gs.console.success("started"), d.Browser().Name(), wd.SessionID())

	if url != "" {
		if err := d.Navigate(c.gs.ctx, url); err != nil {
			return err //nolint:wrapcheck
		}
		title, _ := wd.Title()
		c.gs.console.printf("%s %s %q\n", c.gs.console.applyTheme("loaded"), url, title)
	}
	if c.screenshot != "" {
		if err := d.Screenshot(c.gs.ctx, c.screenshot); err != nil {
			return err //nolint:wrapcheck
		}
		c.gs.console.printf("%s %s\n", c.gs.console.applyTheme("screenshot"), c.screenshot)
	}

	c.wait()

	return nil
}

// forceShutdown kills the driver processes the run left behind.
func (c *cmdOpen) forceShutdown() {
	ctx := osext.WithRunID(c.gs.ctx, c.gs.runID)
	if pids := osext.Registered(ctx); len(pids) > 0 {
		c.gs.logger.Warnf("cmd:open", "killing leftover driver processes %v", pids)
	}
	osext.ForceProcessShutdown(ctx)
}

// wait blocks until the duration elapses, an interrupt arrives or the
// global context is done.
func (c *cmdOpen) wait() {
	sigC := make(chan os.Signal, 2)
	c.gs.signalNotify(sigC, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer c.gs.signalStop(sigC)

	ctx := c.gs.ctx
	if c.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.duration)
		defer cancel()
	}

	select {
	case sig := <-sigC:
		c.gs.logger.Debugf("cmd:open", "received %s, closing the browser", sig)
	case <-ctx.Done():
	}
}
