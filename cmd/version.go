package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/grafana/webdriver-launcher/browser"
)

func versionDetails() map[string]string {
	return map[string]string{
		"version": "v" + browser.Version,
		"go":      runtime.Version(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
}

type versionCmd struct {
	gs     *globalState
	isJSON bool
}

func (c *versionCmd) run(_ *cobra.Command, _ []string) error {
	details := versionDetails()
	if !c.isJSON {
		c.gs.console.printf("webdriver-launcher %s (%s, %s/%s)\n",
			details["version"], details["go"], details["os"], details["arch"])
		return nil
	}

	jsonDetails, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed produce a JSON version details: %w", err)
	}
	c.gs.console.printf("%s\n", jsonDetails)

	return nil
}

func getCmdVersion(gs *globalState) *cobra.Command {
	versionCmd := &versionCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show application version",
		Long:  `Show the application version and exit.`,
		Args:  cobra.NoArgs,
		RunE:  versionCmd.run,
	}
	cmd.Flags().BoolVar(&versionCmd.isJSON, "json", false, "if set, output version information will be in JSON format")

	return cmd
}
