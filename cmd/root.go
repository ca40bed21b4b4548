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

// Package cmd implements the webdriver-launcher command line.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/grafana/webdriver-launcher/browser"
)

const banner = `webdriver-launcher v%s
configures and launches WebDriver sessions`

type rootCommand struct {
	gs  *globalState
	cmd *cobra.Command
}

func newRootCommand(gs *globalState) *rootCommand {
	c := &rootCommand{gs: gs}
	c.cmd = &cobra.Command{
		Use:               "webdriver-launcher",
		Short:             "configure and launch WebDriver sessions",
		Long:              fmt.Sprintf(banner, browser.Version),
		Version:           browser.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
	}
	c.cmd.SetOut(gs.stdOut)
	c.cmd.SetErr(gs.stdErr)
	c.cmd.PersistentFlags().AddFlagSet(rootCmdPersistentFlagSet(gs))

	c.cmd.AddCommand(
		getCmdInstall(gs),
		getCmdOpen(gs),
		getCmdProfiles(gs),
		getCmdVersion(gs),
	)

	return c
}

func (c *rootCommand) persistentPreRunE(_ *cobra.Command, _ []string) error {
	if c.gs.flags.noColor {
		color.NoColor = true
	}
	if err := c.gs.setup(); err != nil {
		return exitCodeError{error: err, code: invalidConfigErrorCode}
	}
	c.gs.logger.Debugf("cmd", "webdriver-launcher version: v%s", browser.Version)

	return nil
}

func rootCmdPersistentFlagSet(gs *globalState) *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.BoolVarP(&gs.flags.verbose, "verbose", "v", gs.flags.verbose, "enable debug logging")
	flags.BoolVar(&gs.flags.noColor, "no-color", gs.flags.noColor, "disable colored output")
	flags.StringVarP(&gs.flags.configFilePath, "config", "c", gs.flags.configFilePath,
		"YAML file with launch options, overridden by WEBDRIVER_* variables and flags")
	flags.StringVar(&gs.flags.tracesEndpoint, "traces-endpoint", gs.flags.tracesEndpoint,
		"OTLP endpoint spans are exported to, tracing is off when empty")
	flags.StringVar(&gs.flags.tracesProtocol, "traces-protocol", gs.flags.tracesProtocol,
		`OTLP protocol, "http" or "grpc"`)
	flags.BoolVar(&gs.flags.tracesInsecure, "traces-insecure", gs.flags.tracesInsecure,
		"export spans without TLS")
	must(cobra.MarkFlagFilename(flags, "config", "yaml", "yml"))

	return flags
}

// Execute runs the command line. It is called by main.main().
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gs := newGlobalState(ctx)
	newRootCommand(gs).execute()
}

func (c *rootCommand) execute() {
	err := c.cmd.Execute()
	if err == nil {
		return
	}

	code := genericErrorCode
	var ecerr exitCodeError
	if errors.As(err, &ecerr) {
		code = ecerr.code
	}

	if c.gs.logger != nil {
		c.gs.logger.Logger.WithError(err).Error("command failed")
	} else {
		fallback := &logrus.Logger{
			Out:       c.gs.stdErr,
			Formatter: new(logrus.TextFormatter),
			Hooks:     make(logrus.LevelHooks),
			Level:     logrus.InfoLevel,
		}
		fallback.WithError(err).Error("command failed")
	}
	c.gs.osExit(code)
}

// Exit codes of failed commands.
const (
	genericErrorCode       = 1
	invalidConfigErrorCode = 2
	runDisabledErrorCode   = 3
)

// exitCodeError sets the exit code of a failed command.
type exitCodeError struct {
	error
	code int
}

func (e exitCodeError) Unwrap() error {
	return e.error
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
