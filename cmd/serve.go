package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/pqrs-service/internal/app"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, notification worker and deadline scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := bootstrap(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer cleanup()

	server := a.HTTP()
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.Logger.Info("http listening", zap.String("addr", a.Config.App.Addr()))
		return server.Listen(a.Config.App.Addr())
	})
	group.Go(func() error {
		return a.NotificationWorker().Run(gctx)
	})
	group.Go(func() error {
		return a.DeadlineScheduler().Run(gctx)
	})
	group.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.ShutdownWithContext(sctx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
