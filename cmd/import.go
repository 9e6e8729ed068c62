package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spec-kit/pqrs-service/internal/app"
	"github.com/spec-kit/pqrs-service/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <file.xlsx|file.csv>",
	Short: "Bulk import cases from a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := importer.Parse(filepath.Base(path), f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	ctx := cmd.Context()
	a, cleanup, err := bootstrap(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer cleanup()

	summary := a.Cases.BulkImport(ctx, rows)
	flushNotifications(ctx, a)
	return printJSON(cmd.OutOrStdout(), summary)
}
