package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/pqrs-service/internal/app"
	"github.com/spec-kit/pqrs-service/internal/importer"
)

var scanDate string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one deadline scan and print the report",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanDate, "date", "", "reference date (YYYY-MM-DD); defaults to today")
}

func runScan(cmd *cobra.Command, args []string) error {
	ref := time.Now()
	if scanDate != "" {
		parsed, err := importer.ParseDate(scanDate)
		if err != nil || parsed == nil {
			return fmt.Errorf("invalid --date %q", scanDate)
		}
		ref = *parsed
	}

	ctx := cmd.Context()
	a, cleanup, err := bootstrap(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := a.Monitor.ScanAndAlert(ctx, ref)
	if err != nil {
		return err
	}
	flushNotifications(ctx, a)
	return printJSON(cmd.OutOrStdout(), report)
}
