// Package main is the webdriver-launcher command.
package main

import "github.com/grafana/webdriver-launcher/cmd"

func main() {
	cmd.Execute()
}
