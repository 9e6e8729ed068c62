package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/pqrs-service/internal/app"
	"github.com/spec-kit/pqrs-service/internal/persistence"
)

var errNoDatabase = errors.New("POSTGRES_DSN is not set")

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current schema version",
	RunE:  runMigrateStatus,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, cleanup, err := bootstrap(ctx, app.Options{SkipMigrations: true})
	if err != nil {
		return err
	}
	defer cleanup()

	if !a.Postgres.Enabled() {
		return errNoDatabase
	}
	if err := persistence.RunMigrations(ctx, a.Postgres.PoolHandle(), a.Logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrate up: ok")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, cleanup, err := bootstrap(ctx, app.Options{SkipMigrations: true})
	if err != nil {
		return err
	}
	defer cleanup()

	if !a.Postgres.Enabled() {
		return errNoDatabase
	}
	version, err := persistence.MigrationVersion(ctx, a.Postgres.PoolHandle())
	if err != nil {
		return fmt.Errorf("migrate status: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
	return nil
}
