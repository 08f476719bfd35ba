package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"nepse-journal/internal/ledger"
	"nepse-journal/internal/models"
	"nepse-journal/internal/portfolio"
)

// addPortfolioCommands adds cash ledger and balance commands.
func addPortfolioCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:     "portfolio",
		Aliases: []string{"pf"},
		Short:   "Portfolio balance and cash ledger",
		Long:    "Show the reconciled balance, record deposits and withdrawals, and change portfolio settings.",
	}

	cmd.AddCommand(newPortfolioShowCmd(app))
	cmd.AddCommand(newPortfolioBalanceCmd(app))
	cmd.AddCommand(newPortfolioHistoryCmd(app))
	cmd.AddCommand(newCashCmd(app, models.Deposit))
	cmd.AddCommand(newCashCmd(app, models.Withdrawal))
	cmd.AddCommand(newTransactionsCmd(app))
	cmd.AddCommand(newSettingsCmd(app))

	rootCmd.AddCommand(cmd)
}

func newPortfolioShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the portfolio dashboard",
		Long:  "Display totals, net change, recent transactions and the balance history.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			dash, err := app.Portfolios.Dashboard(ctx, app.UserID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(dash)
			}

			p := dash.Portfolio
			output.Box(fmt.Sprintf("%s (%s)", p.Name, p.UserID), []string{
				fmt.Sprintf("Balance:          %s", FormatNPR(p.CurrentBalance)),
				fmt.Sprintf("Initial Capital:  %s", FormatNPR(p.InitialCapital)),
				fmt.Sprintf("Net Change:       %s (%s)", output.FormatPnL(dash.NetChange), output.FormatPercent(dash.NetChangePercent)),
				fmt.Sprintf("Deposits:         %s (%d)", FormatNPR(dash.TotalDeposits), dash.DepositCount),
				fmt.Sprintf("Withdrawals:      %s (%d)", FormatNPR(dash.TotalWithdrawals), dash.WithdrawalCount),
				fmt.Sprintf("Realized P&L:     %s", output.FormatPnL(dash.TotalPnL)),
			})
			output.Println()

			if len(dash.Recent) == 0 {
				output.Info("No transactions yet.")
				output.Dim("Tip: journal portfolio deposit 100000")
				return nil
			}

			output.Bold("Recent Transactions")
			renderTransactionViews(output, dash.Recent, app.location())
			output.Println()

			output.Bold("Balance History")
			renderHistory(output, dash.History)
			return nil
		},
	}
}

func newPortfolioBalanceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the reconciled balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			balance, err := app.Portfolios.GetBalance(ctx, app.UserID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"user_id":  app.UserID,
					"balance":  balance.StringFixed(2),
					"currency": models.Currency,
				})
			}
			output.Printf("%s\n", FormatNPR(balance))
			return nil
		},
	}
}

func newPortfolioHistoryCmd(app *App) *cobra.Command {
	var chart bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the daily balance history",
		Long: `Show the running balance at the end of every day with a deposit, a
withdrawal or a closed trade. Days follow the configured ui.timezone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			points, err := app.Portfolios.GetBalanceHistory(ctx, app.UserID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(points)
			}
			renderHistory(output, points)
			if chart {
				values := make([]decimal.Decimal, len(points))
				for i, p := range points {
					values[i] = p.Value
				}
				output.Println()
				drawCurve(output, values)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&chart, "chart", false, "draw the balance curve")
	return cmd
}

func newCashCmd(app *App, txnType models.TransactionType) *cobra.Command {
	var date, note string

	use, short := "deposit <amount>", "Record a deposit"
	if txnType == models.Withdrawal {
		use, short = "withdraw <amount>", "Record a withdrawal"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Example: `  journal portfolio deposit 50000
  journal portfolio withdraw 12,500 --date 2024-03-01 --note "IPO application"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			amount, err := ParseDecimal("amount", args[0])
			if err != nil {
				return err
			}
			in := ledger.TransactionInput{Type: txnType, Amount: amount, Description: note}
			if date != "" {
				if in.Date, err = ParseDate(date, app.location()); err != nil {
					return err
				}
			}

			txn, res, err := app.Ledger.AddTransaction(ctx, app.UserID, in)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"transaction": txn, "reconcile": res})
			}

			output.Success("✓ %s of %s recorded", txnLabel(txn.Type), FormatNPR(txn.Amount))
			output.Dim("ID: %s", txn.ID)
			printReconcile(output, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "transaction date (YYYY-MM-DD, default: now)")
	cmd.Flags().StringVar(&note, "note", "", "description")

	return cmd
}

func newTransactionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "txn",
		Aliases: []string{"transactions"},
		Short:   "List or delete cash transactions",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			txns, err := app.Ledger.ListTransactions(ctx, app.UserID, limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				if txns == nil {
					txns = []models.Transaction{}
				}
				return output.JSON(txns)
			}
			if len(txns) == 0 {
				output.Info("No transactions recorded.")
				return nil
			}

			table := NewTable(output, "Date", "Type", "Amount", "Description", "ID")
			for _, t := range txns {
				table.AddRow(
					FormatDate(t.Date, app.location()),
					txnLabel(t.Type),
					FormatNPR(t.Signed()),
					TruncateString(t.Description, 30),
					t.ID,
				)
			}
			table.Render()
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum transactions to show (0 for all)")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction and reconcile the balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			res, err := app.Ledger.DeleteTransaction(ctx, app.UserID, args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}
			output.Success("✓ Transaction %s deleted", args[0])
			printReconcile(output, res)
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}

func newSettingsCmd(app *App) *cobra.Command {
	var name, capital string

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Change the portfolio name or initial capital",
		Example: `  journal portfolio settings --capital 100000
  journal portfolio settings --name "Long term"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			var in ledger.SettingsInput
			if cmd.Flags().Changed("name") {
				in.Name = &name
			}
			if cmd.Flags().Changed("capital") {
				c, err := ParseDecimal("capital", capital)
				if err != nil {
					return err
				}
				in.InitialCapital = &c
			}

			p, err := app.Ledger.UpdateSettings(ctx, app.UserID, in)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(p)
			}
			output.Success("✓ Portfolio %q updated", p.Name)
			output.Printf("  Initial Capital: %s\n", FormatNPR(p.InitialCapital))
			output.Printf("  Balance:         %s\n", FormatNPR(p.CurrentBalance))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "portfolio name")
	cmd.Flags().StringVar(&capital, "capital", "", "initial capital in NPR")

	return cmd
}

func txnLabel(t models.TransactionType) string {
	switch t {
	case models.Deposit:
		return "Deposit"
	case models.Withdrawal:
		return "Withdrawal"
	}
	return string(t)
}

func renderTransactionViews(output *Output, views []portfolio.TransactionView, loc *time.Location) {
	table := NewTable(output, "Date", "Type", "Amount", "Balance After", "Description")
	for _, v := range views {
		t := v.Transaction
		table.AddRow(
			FormatDate(t.Date, loc),
			txnLabel(t.Type),
			output.FormatPnL(t.Signed()),
			FormatNPR(v.BalanceAfter),
			TruncateString(t.Description, 30),
		)
	}
	table.Render()
}

func renderHistory(output *Output, points []portfolio.BalancePoint) {
	table := NewTable(output, "Day", "Balance", "Change")
	prev := decimal.Zero
	for i, p := range points {
		change := "-"
		if i > 0 {
			change = output.FormatPnL(p.Value.Sub(prev))
		}
		day := p.Label
		if p.Date != "" {
			day = p.Date
		}
		table.AddRow(day, FormatNPR(p.Value), change)
		prev = p.Value
	}
	table.Render()
}

// printReconcile reports the balance change caused by a ledger write.
func printReconcile(output *Output, res portfolio.Result) {
	switch {
	case res.Skipped:
		output.Warning("No portfolio yet; run 'journal portfolio settings --capital <amount>' to start tracking the balance.")
	case res.Changed:
		output.Printf("  Balance: %s → %s\n", FormatNPR(res.OldBalance), FormatNPR(res.NewBalance))
	default:
		output.Printf("  Balance: %s (unchanged)\n", FormatNPR(res.NewBalance))
	}
}
