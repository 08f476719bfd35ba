package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"nepse-journal/internal/models"
	"nepse-journal/internal/store"
)

// addExportCommands adds ledger export commands.
func addExportCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export ledgers to files",
		Long:  "Export trades or cash transactions to CSV or JSON files.",
	}

	trades := &cobra.Command{
		Use:   "trades",
		Short: "Export the trade journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			rows, err := app.Ledger.ListTrades(ctx, app.UserID, store.TradeFilter{})
			if err != nil {
				return err
			}
			return runExport(app, cmd, "trades", len(rows), func(w io.Writer, format string) error {
				if format == "json" {
					return writeJSONFile(w, rows)
				}
				return writeTradesCSV(w, rows)
			})
		},
	}

	txns := &cobra.Command{
		Use:   "transactions",
		Short: "Export the cash ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			rows, err := app.Ledger.ListTransactions(ctx, app.UserID, 0)
			if err != nil {
				return err
			}
			return runExport(app, cmd, "transactions", len(rows), func(w io.Writer, format string) error {
				if format == "json" {
					return writeJSONFile(w, rows)
				}
				return writeTransactionsCSV(w, rows)
			})
		},
	}

	for _, c := range []*cobra.Command{trades, txns} {
		c.Flags().StringP("format", "f", "csv", "output format (csv or json)")
		c.Flags().StringP("output", "o", "", "output file (default: <ledger>.<format>, - for stdout)")
		cmd.AddCommand(c)
	}

	rootCmd.AddCommand(cmd)
}

func runExport(app *App, cmd *cobra.Command, name string, count int, write func(io.Writer, string) error) error {
	output := app.output(cmd)
	format, _ := cmd.Flags().GetString("format")
	outFile, _ := cmd.Flags().GetString("output")

	if format != "csv" && format != "json" {
		return fmt.Errorf("invalid format %q: must be csv or json", format)
	}
	if outFile == "" {
		outFile = fmt.Sprintf("%s.%s", name, format)
	}

	if outFile == "-" {
		return write(cmd.OutOrStdout(), format)
	}

	file, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := write(file, format); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	if output.IsJSON() {
		return output.JSON(map[string]interface{}{"file": outFile, "count": count})
	}
	output.Success("✓ Exported %d %s to %s", count, name, outFile)
	return nil
}

func writeJSONFile(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func writeTradesCSV(w io.Writer, trades []models.Trade) error {
	writer := csv.NewWriter(w)

	writer.Write([]string{
		"id", "symbol", "type", "status", "entry_date", "entry_price", "quantity",
		"exit_date", "exit_price", "pnl", "strategy_id", "emotion", "backtest", "notes",
	})
	for i := range trades {
		t := &trades[i]
		exitDate, exitPrice, pnl, strategy := "", "", "", ""
		if t.ExitDate != nil {
			exitDate = t.ExitDate.Format(time.RFC3339)
		}
		if t.ExitPrice != nil {
			exitPrice = t.ExitPrice.String()
		}
		if v, ok := t.PnL(); ok {
			pnl = v.String()
		}
		if t.StrategyID != nil {
			strategy = *t.StrategyID
		}
		writer.Write([]string{
			t.ID,
			t.Symbol,
			string(t.Type),
			string(t.Status),
			t.EntryDate.Format(time.RFC3339),
			t.EntryPrice.String(),
			strconv.FormatInt(t.Quantity, 10),
			exitDate,
			exitPrice,
			pnl,
			strategy,
			string(t.Emotion),
			strconv.FormatBool(t.IsBacktest),
			t.Notes,
		})
	}

	writer.Flush()
	return writer.Error()
}

func writeTransactionsCSV(w io.Writer, txns []models.Transaction) error {
	writer := csv.NewWriter(w)

	writer.Write([]string{"id", "date", "type", "amount", "description"})
	for _, t := range txns {
		writer.Write([]string{
			t.ID,
			t.Date.Format(time.RFC3339),
			string(t.Type),
			t.Amount.String(),
			t.Description,
		})
	}

	writer.Flush()
	return writer.Error()
}
