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

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/grafana/webdriver-launcher/common"
	"github.com/grafana/webdriver-launcher/log"
	"github.com/grafana/webdriver-launcher/osext"
	"github.com/grafana/webdriver-launcher/otel"
	"github.com/grafana/webdriver-launcher/trace"
)

// globalState holds what the commands share. Tests build it with
// their own outputs and environment.
type globalState struct {
	ctx context.Context

	stdOut, stdErr io.Writer
	env            map[string]string
	runID          string

	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
	osExit       func(int)

	flags globalFlags

	// Set up before every command runs.
	console    *console
	logger     *log.Logger
	launchOpts *common.LaunchOptions
}

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	configFilePath string
	verbose        bool
	noColor        bool

	tracesEndpoint string
	tracesProtocol string
	tracesInsecure bool
}

func newGlobalState(ctx context.Context) *globalState {
	env := buildEnvMap(os.Environ())
	return &globalState{
		ctx:          ctx,
		stdOut:       os.Stdout,
		stdErr:       os.Stderr,
		env:          env,
		runID:        osext.NewRunID(),
		signalNotify: signal.Notify,
		signalStop:   signal.Stop,
		osExit:       os.Exit,
		flags:        getDefaultFlags(env),
	}
}

func getDefaultFlags(env map[string]string) globalFlags {
	_, noColor := env["NO_COLOR"]
	protocol := env["WEBDRIVER_TRACES_PROTOCOL"]
	if protocol == "" {
		protocol = "http"
	}
	return globalFlags{
		configFilePath: env["WEBDRIVER_CONFIG"],
		noColor:        noColor,
		tracesEndpoint: env["WEBDRIVER_TRACES_ENDPOINT"],
		tracesProtocol: protocol,
		tracesInsecure: isTrue(env["WEBDRIVER_TRACES_INSECURE"]),
	}
}

// setup prepares the console, the logger and the launch options for
// the command about to run. Options come from the defaults, then the
// config file, then the environment. Commands apply their own flags
// last.
func (gs *globalState) setup() error {
	gs.console = newConsole(gs.stdOut, gs.stdErr, !gs.flags.noColor, gs.env["TERM"])

	logger, err := log.NewFromEnv(gs.runID, gs.lookupEnv)
	if err != nil {
		return err //nolint:wrapcheck
	}
	logger.SetOutput(gs.console.stderr)
	if _, ok := gs.env["WEBDRIVER_LOG_CALLER"]; !ok {
		logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   gs.console.theme != nil,
			DisableColors: gs.flags.noColor,
		})
	}
	if gs.flags.verbose {
		logger.Logger.SetLevel(logrus.DebugLevel)
	}
	gs.logger = logger

	lopts := common.NewLaunchOptions()
	if gs.flags.configFilePath != "" {
		if err := lopts.LoadFile(gs.flags.configFilePath); err != nil {
			return fmt.Errorf("loading config %q: %w", gs.flags.configFilePath, err)
		}
	}
	if err := lopts.Parse(logger, gs.env); err != nil {
		return err //nolint:wrapcheck
	}
	if err := logger.SetCategoryFilter(lopts.LogCategoryFilter); err != nil {
		return err //nolint:wrapcheck
	}
	logger.SetDebugOverride(lopts.Debug)
	gs.launchOpts = lopts

	return nil
}

func (gs *globalState) lookupEnv(key string) (string, bool) {
	v, ok := gs.env[key]
	return v, ok
}

// newTracer returns a tracer exporting to the configured traces
// endpoint, or a tracer recording nothing when there is none.
func (gs *globalState) newTracer(ctx context.Context) (*trace.Tracer, func(), error) {
	if gs.flags.tracesEndpoint == "" {
		return trace.NewNoopTracer(gs.logger.Logger), func() {}, nil
	}

	tp, err := otel.NewTraceProvider(ctx, otel.Options{
		Proto:    gs.flags.tracesProtocol,
		Endpoint: gs.flags.tracesEndpoint,
		Insecure: gs.flags.tracesInsecure,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating trace provider: %w", err)
	}
	shutdown := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			gs.logger.Warnf("cmd:tracer", "shutting down trace provider: %v", err)
		}
	}
	tracer := trace.NewTracer(gs.logger.Logger, tp, map[string]string{"run_id": gs.runID})

	return tracer, shutdown, nil
}

func parseEnvKeyValue(kv string) (string, string) {
	if idx := strings.IndexRune(kv, '='); idx != -1 {
		return kv[:idx], kv[idx+1:]
	}
	return kv, ""
}

func buildEnvMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v := parseEnvKeyValue(kv)
		env[k] = v
	}
	return env
}

func isTrue(s string) bool {
	switch strings.ToLower(s) {
	case "1", "t", "true", "yes", "on":
		return true
	default:
		return false
	}
}
