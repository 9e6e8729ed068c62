package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/app"
	"github.com/spec-kit/pqrs-service/internal/config"
	"github.com/spec-kit/pqrs-service/internal/observability"
)

const drainIdle = 2 * time.Second

var rootCmd = &cobra.Command{
	Use:           "pqrs-service",
	Short:         "PQRS case tracking: intake, classification, lifecycle and deadline alerts",
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(reconcileCmd)
}

// bootstrap loads configuration and wires the application for one command.
func bootstrap(ctx context.Context, opts app.Options) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger, opts)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	cleanup := func() {
		a.Close()
		_ = logger.Sync()
	}
	return a, cleanup, nil
}

// flushNotifications delivers what a one-shot command queued in process memory.
func flushNotifications(ctx context.Context, a *app.App) {
	if !a.InProcessQueue() {
		return
	}
	if n := a.NotificationWorker().Drain(ctx, drainIdle); n > 0 {
		a.Logger.Info("notifications flushed", zap.Int("count", n))
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
