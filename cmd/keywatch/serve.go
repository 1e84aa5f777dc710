package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/keywatch"
	"github.com/jpalmerr/keywatch/config"
	"github.com/jpalmerr/keywatch/dashboard"
	"github.com/jpalmerr/keywatch/internal/server"
)

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// serveCmd starts the keywatch dashboard server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the keywatch dashboard server.

The server will:
  - Load configuration from the specified YAML file
  - Create a store seeded with the configured values
  - Serve the dashboard UI and API on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  keywatch serve -c config.yaml
  keywatch serve --config /etc/keywatch/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := newLogger(level)

	logger.Info("config loaded",
		"seed_keys", len(cfg.Seed),
		"watch_keys", len(cfg.Watch),
	)
	logger.Info("starting server",
		"port", cfg.Port,
		"url", fmt.Sprintf("http://localhost:%d", cfg.Port),
	)

	// dedicated registry: store counters plus the usual process/go collectors
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := keywatch.New(config.BuildOptions(cfg, logger, registry)...)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer store.Close()

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(store, cfg.Watch, cfg.Port, dashboard.Assets, cfg.Title, logger, registry)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	logger.Info("keywatch stopped")
	return nil
}
