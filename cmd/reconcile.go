package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spec-kit/pqrs-service/internal/app"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Check every case state against its history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, cleanup, err := bootstrap(ctx, app.Options{})
		if err != nil {
			return err
		}
		defer cleanup()

		report, err := a.Ledger.Reconcile(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}
