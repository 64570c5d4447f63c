/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mltframework/melted/internal/config"
	"github.com/mltframework/melted/internal/logging"
	"github.com/mltframework/melted/internal/server"
	"github.com/mltframework/melted/internal/telemetry"
	"github.com/mltframework/melted/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config

	flagPort          int
	flagBind          string
	flagStartupScript string
	flagProxy         string
)

var rootCmd = &cobra.Command{
	Use:          "melted",
	Short:        "melted - MVCP playout control server",
	Long:         "melted serves the MVCP line protocol on TCP and drives playout units through an in-process media engine or a remote server.",
	RunE:         runServe,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control server",
	Long:  "Start the MVCP control server, the admin HTTP API and the as-run monitor",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Current().String())
	},
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&flagPort, "port", "p", 0, "control port (overrides MELTED_PORT)")
	cmd.Flags().StringVar(&flagBind, "bind", "", "listen address (overrides MELTED_BIND)")
	cmd.Flags().StringVarP(&flagStartupScript, "startup-script", "c", "", "script run at start (overrides MELTED_STARTUP_SCRIPT)")
	cmd.Flags().StringVar(&flagProxy, "proxy", "", "forward commands to host[:port] (overrides MELTED_PROXY)")
}

func init() {
	addServeFlags(rootCmd)
	addServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd, consoleCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and applies command line overrides.
func loadConfig(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = flagPort
	}
	if flags.Changed("bind") {
		cfg.Bind = flagBind
	}
	if flags.Changed("startup-script") {
		cfg.StartupScript = flagStartupScript
	}
	if flags.Changed("proxy") {
		cfg.Proxy = flagProxy
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment, cfg.LogLevel)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}

	logger.Info().Str("version", version.Current().String()).Msg("melted starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "melted",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	if err := srv.Start(context.Background()); err != nil {
		_ = srv.Shutdown(context.Background())
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully...")
	case <-srv.Done():
		logger.Info().Msg("shutdown command received")
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("melted stopped")
	return nil
}
