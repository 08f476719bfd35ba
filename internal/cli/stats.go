package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"nepse-journal/internal/analytics"
	"nepse-journal/internal/store"
)

// addStatsCommands adds the performance statistics command.
func addStatsCommands(rootCmd *cobra.Command, app *App) {
	var monthly, chart bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show trading performance statistics",
		Long: `Summarize closed trades: win rate, profit factor, average win and loss,
expectancy and the realized P&L of the last 12 months.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			trades, err := app.Ledger.ListTrades(ctx, app.UserID, store.TradeFilter{})
			if err != nil {
				return err
			}
			stats := analytics.Compute(trades, time.Now(), app.location())
			if output.IsJSON() {
				return output.JSON(stats)
			}

			if stats.TotalTrades == 0 {
				output.Info("No trades recorded.")
				return nil
			}

			profitFactor := stats.ProfitFactor.StringFixed(2)
			if stats.InfiniteProfitFactor {
				profitFactor = "∞"
			}
			output.Box("Performance", []string{
				fmt.Sprintf("Trades:         %d (%d open, %d closed)", stats.TotalTrades, stats.OpenTrades, stats.ClosedTrades),
				fmt.Sprintf("Wins/Losses:    %d/%d (%d breakeven)", stats.WinningTrades, stats.LosingTrades, stats.BreakevenTrades),
				fmt.Sprintf("Win Rate:       %s%%", stats.WinRate.StringFixed(2)),
				fmt.Sprintf("Total P&L:      %s", output.FormatPnL(stats.TotalPnL)),
				fmt.Sprintf("Gross Profit:   %s", FormatNPR(stats.GrossProfit)),
				fmt.Sprintf("Gross Loss:     %s", FormatNPR(stats.GrossLoss)),
				fmt.Sprintf("Profit Factor:  %s", profitFactor),
				fmt.Sprintf("Average Win:    %s", FormatNPR(stats.AverageWin)),
				fmt.Sprintf("Average Loss:   %s", FormatNPR(stats.AverageLoss)),
				fmt.Sprintf("Expectancy:     %s", output.FormatPnL(stats.Expectancy)),
			})

			if chart {
				values := make([]decimal.Decimal, len(stats.EquityCurve))
				for i, p := range stats.EquityCurve {
					values[i] = p.Value
				}
				output.Println()
				output.Bold("Cumulative P&L")
				drawCurve(output, values)
			}

			if monthly {
				output.Println()
				output.Bold("Monthly P&L")
				table := NewTable(output, "Month", "P&L")
				for _, m := range stats.Monthly {
					table.AddRow(m.Month, output.FormatPnL(m.PnL))
				}
				table.Render()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&monthly, "monthly", false, "include the monthly P&L breakdown")
	cmd.Flags().BoolVar(&chart, "chart", false, "draw the cumulative P&L curve")
	rootCmd.AddCommand(cmd)
}
