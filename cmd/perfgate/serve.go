package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fractalyze/perfgate/pkg/config"
	"github.com/fractalyze/perfgate/pkg/dashboard"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	Long:  `Start the read-only HTTP API over recorded benchmark runs.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if !cfg.Dashboard.Enabled {
		return fmt.Errorf("dashboard is not enabled in config")
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	srv := dashboard.NewServer(log, &cfg.Dashboard)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting dashboard server: %w", err)
	}

	<-ctx.Done()
	log.Info("Received shutdown signal")

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping dashboard server: %w", err)
	}

	return nil
}
