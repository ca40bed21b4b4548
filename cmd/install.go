package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grafana/webdriver-launcher/browser"
)

type cmdInstall struct {
	gs            *globalState
	driverVersion string
}

func getCmdInstall(gs *globalState) *cobra.Command {
	c := &cmdInstall{gs: gs}

	cmd := &cobra.Command{
		Use:   "install [browser]",
		Short: "Set up the driver of a browser",
		Long: `Set up the WebDriver binary of a browser and print its path.

The driver is downloaded to the driver cache unless it's there already.
Browsers are chrome (the default), edge, firefox, IE and opera.`,
		Example: `  webdriver-launcher install firefox
  webdriver-launcher install chrome --driver-version 126.0.6478.126`,
		Args: cobra.MaximumNArgs(1),
		RunE: c.run,
	}
	cmd.Flags().StringVar(&c.driverVersion, "driver-version", "", `driver version (default "latest")`)

	return cmd
}

func (c *cmdInstall) run(cmd *cobra.Command, args []string) error {
	lopts := c.gs.launchOpts.Clone()
	if cmd.Flags().Changed("driver-version") {
		lopts.DriverVersion = c.driverVersion
	}
	name := lopts.Browser
	if len(args) > 0 {
		name = args[0]
	}

	v, bname, ok := browser.DefaultRegistry().Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", browser.ErrUnknownBrowser, bname)
	}
	mgr, err := browser.NewManagerFromEnv(lopts, c.gs.logger, c.gs.env)
	if err != nil {
		return err //nolint:wrapcheck
	}

	path, err := mgr.SetUpDriver(c.gs.ctx, v.Driver, lopts.DriverVersion)
	if err != nil {
		return fmt.Errorf("installing the %s driver: %w", bname, err)
	}
	c.gs.console.printf("%s %s\n", c.gs.console.applyTheme(v.Driver.Name()+":"), path)

	return nil
}
