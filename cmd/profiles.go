package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/grafana/webdriver-launcher/common"
)

type cmdProfiles struct {
	gs     *globalState
	asYAML bool
}

// networkProfile is the YAML form of a network profile.
type networkProfile struct {
	Name     string  `yaml:"name"`
	Latency  float64 `yaml:"latency"`
	Download float64 `yaml:"download"`
	Upload   float64 `yaml:"upload"`
}

func getCmdProfiles(gs *globalState) *cobra.Command {
	c := &cmdProfiles{gs: gs}

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the network profiles",
		Long: `List the network profiles accepted by --network-profile and
WEBDRIVER_NETWORK_PROFILE. Latency is in milliseconds, throughput in
bytes per second, -1 means unthrottled. Only Chromium based browsers
can be throttled.`,
		Args: cobra.NoArgs,
		RunE: c.run,
	}
	cmd.Flags().BoolVar(&c.asYAML, "yaml", false, "print the profiles as YAML")

	return cmd
}

func (c *cmdProfiles) run(_ *cobra.Command, _ []string) error {
	profiles := common.GetNetworkProfiles()
	names := common.NetworkProfileNames()

	if c.asYAML {
		out := make([]networkProfile, 0, len(names))
		for _, n := range names {
			p := profiles[n]
			out = append(out, networkProfile{Name: n, Latency: p.Latency, Download: p.Download, Upload: p.Upload})
		}
		data, err := yaml.Marshal(out)
		if err != nil {
			return fmt.Errorf("could not marshal YAML: %w", err)
		}
		c.gs.console.printf("%s", data)
		return nil
	}

	tw := tabwriter.NewWriter(c.gs.console.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, c.gs.console.applyTheme("NAME\tLATENCY\tDOWNLOAD\tUPLOAD"))
	for _, n := range names {
		p := profiles[n]
		fmt.Fprintf(tw, "%s\t%g\t%g\t%g\n", n, p.Latency, p.Download, p.Upload)
	}

	return tw.Flush() //nolint:wrapcheck
}
