// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/googleapis/mcgravity/internal/composer"
	"github.com/googleapis/mcgravity/internal/config"
	"github.com/googleapis/mcgravity/internal/log"
	"github.com/googleapis/mcgravity/internal/registry"
	"github.com/googleapis/mcgravity/internal/server"
	"github.com/googleapis/mcgravity/internal/telemetry"
)

var (
	// versionString indicates the version of this library.
	//go:embed version.txt
	versionString string
	// metadataString indicates additional build or distribution metadata.
	metadataString string
)

func init() {
	versionString = semanticVersion()
}

// semanticVersion returns the version of the CLI including a compile-time metadata.
func semanticVersion() string {
	v := strings.TrimSpace(versionString)
	if metadataString != "" {
		v += "+" + metadataString
	}
	return v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// Command represents an invocation of the CLI.
type Command struct {
	*cobra.Command

	cfg        server.ServerConfig
	configPath string
	logger     log.Logger
	outStream  io.Writer
	errStream  io.Writer
}

// NewCommand returns a Command object representing an invocation of the CLI.
func NewCommand() *Command {
	out := os.Stdout
	err := os.Stderr

	baseCmd := &cobra.Command{
		Use:           "mcgravity [upstream-url ...]",
		Short:         "mcgravity fronts one or more MCP servers behind a single aggregating endpoint",
		Version:       versionString,
		SilenceErrors: true,
	}
	cmd := &Command{
		Command:   baseCmd,
		outStream: out,
		errStream: err,
	}

	baseCmd.SetOut(cmd.outStream)
	baseCmd.SetErr(cmd.errStream)

	flags := cmd.Flags()
	flags.StringVar(&cmd.cfg.Address, "host", "localhost", "Address of the interface the server will listen on.")
	flags.IntVarP(&cmd.cfg.Port, "port", "p", 3001, "Port the server will listen on.")
	flags.StringVar(&cmd.configPath, "config", "", "Path to a YAML file listing upstream servers.")
	flags.StringVar(&cmd.cfg.MCPName, "mcp-name", "mcgravity", "Identity the aggregator presents to downstream clients.")
	flags.StringVar(&cmd.cfg.MCPVersion, "mcp-version", "1.0.0", "Version string the aggregator presents to downstream clients.")
	flags.Var(&cmd.cfg.LogLevel, "log-level", "Specify the minimum level logged. Allowed: 'DEBUG', 'INFO', 'WARN', 'ERROR'.")
	flags.Var(&cmd.cfg.LoggingFormat, "logging-format", "Specify logging format to use. Allowed: 'standard' or 'JSON'.")

	cmd.RunE = func(c *cobra.Command, args []string) error { return run(cmd, args) }

	return cmd
}

// resolveDescriptors builds the upstream descriptor list either from
// --config, when it names an existing file, or from positional upstream
// URLs, per the CLI surface's documented precedence.
func resolveDescriptors(configPath string, positional []string) ([]registry.Descriptor, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			f, err := config.Load(configPath)
			if err != nil {
				return nil, err
			}
			return f.Descriptors()
		}
	}

	descriptors := make([]registry.Descriptor, 0, len(positional))
	for _, u := range positional {
		d, err := config.DescriptorFromURL(u)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

func run(cmd *Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch strings.ToLower(cmd.cfg.LoggingFormat.String()) {
	case "json":
		logger, err := log.NewStructuredLogger(cmd.outStream, cmd.errStream, cmd.cfg.LogLevel.String())
		if err != nil {
			return fmt.Errorf("unable to initialize logger: %w", err)
		}
		cmd.logger = logger
	case "standard":
		logger, err := log.NewStdLogger(cmd.outStream, cmd.errStream, cmd.cfg.LogLevel.String())
		if err != nil {
			return fmt.Errorf("unable to initialize logger: %w", err)
		}
		cmd.logger = logger
	default:
		return fmt.Errorf("logging format invalid")
	}

	otelShutdown, err := telemetry.SetupOTel(ctx, cmd.Command.Version)
	if err != nil {
		errMsg := fmt.Errorf("error setting up OpenTelemetry: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			cmd.logger.Error(fmt.Errorf("error shutting down OpenTelemetry: %w", err).Error())
		}
	}()

	inst, err := telemetry.CreateInstrumentation(cmd.Command.Version)
	if err != nil {
		errMsg := fmt.Errorf("error creating instrumentation: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}

	descriptors, err := resolveDescriptors(cmd.configPath, args)
	if err != nil {
		errMsg := fmt.Errorf("mcgravity failed to start with the following error: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}

	clientInfo := mcp.Implementation{Name: cmd.cfg.MCPName, Version: cmd.cfg.MCPVersion}
	comp := composer.New(clientInfo, cmd.logger, inst)
	for _, d := range descriptors {
		comp.Start(ctx, d)
	}

	s, err := server.NewServer(cmd.cfg, cmd.logger, comp)
	if err != nil {
		errMsg := fmt.Errorf("mcgravity failed to start with the following error: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}
	l, err := s.Listen(ctx)
	if err != nil {
		errMsg := fmt.Errorf("mcgravity failed to mount listener: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(l) }()

	cmd.logger.Info("mcgravity ready to serve")

	select {
	case <-ctx.Done():
		cmd.logger.Info("shutting down")
		_ = l.Close()
		return nil
	case err := <-serveErr:
		if err != nil {
			errMsg := fmt.Errorf("mcgravity crashed with the following error: %w", err)
			cmd.logger.Error(errMsg.Error())
			return errMsg
		}
		return nil
	}
}
