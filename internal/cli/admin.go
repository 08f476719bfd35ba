package cli

import (
	"github.com/spf13/cobra"

	"nepse-journal/internal/security"
)

// addAdminCommands adds maintenance commands.
func addAdminCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Maintenance commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "recalculate",
		Short: "Recompute every stored balance from its ledgers",
		Long: `Reconcile every portfolio in the database, each in its own transaction,
and report the balances that were stale. Safe to run at any time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			report, err := app.Portfolios.RecalculateAll(ctx)
			app.Audit.LogLedgerEvent(ctx, security.AuditRecalculated, "", "", map[string]interface{}{
				"total":   report.Total,
				"updated": report.Updated,
				"failed":  report.Failed,
			}, err)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(report)
			}

			for _, c := range report.Changes {
				output.Printf("  %s: %s → %s\n", c.UserID, FormatNPR(c.OldBalance), FormatNPR(c.NewBalance))
			}
			output.Success("✓ Recalculated %d portfolios, %d updated", report.Total, report.Updated)
			if report.Failed > 0 {
				output.Warning("%d portfolios failed; see the log for details", report.Failed)
			}
			return nil
		},
	})

	rootCmd.AddCommand(cmd)
}
