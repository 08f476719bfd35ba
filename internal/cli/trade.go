package cli

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"nepse-journal/internal/ledger"
	"nepse-journal/internal/models"
	"nepse-journal/internal/store"
)

// addTradeCommands adds trade journal commands.
func addTradeCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Trade journal",
		Long:  "Record, close, review and delete trades. Closing or reopening a trade reconciles the balance.",
	}

	cmd.AddCommand(newTradeAddCmd(app))
	cmd.AddCommand(newTradeUpdateCmd(app))
	cmd.AddCommand(newTradeCloseCmd(app))
	cmd.AddCommand(newTradeDeleteCmd(app))
	cmd.AddCommand(newTradeListCmd(app))
	cmd.AddCommand(newTradeShowCmd(app))

	rootCmd.AddCommand(cmd)
}

// tradeFlags are the journaled fields settable from the command line.
type tradeFlags struct {
	tradeType  string
	status     string
	entryDate  string
	entryPrice string
	quantity   int64
	exitDate   string
	exitPrice  string
	stopLoss   string
	target     string
	strategy   string
	emotion    string
	notes      string
	backtest   bool
}

func (f *tradeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tradeType, "type", "BUY", "trade direction (BUY or SELL)")
	cmd.Flags().StringVar(&f.status, "status", "OPEN", "trade status (OPEN or CLOSED)")
	cmd.Flags().StringVar(&f.entryDate, "entry-date", "", "entry date (YYYY-MM-DD, default: now)")
	cmd.Flags().StringVar(&f.entryPrice, "price", "", "entry price")
	cmd.Flags().Int64Var(&f.quantity, "qty", 0, "quantity in kitta")
	cmd.Flags().StringVar(&f.exitDate, "exit-date", "", "exit date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.exitPrice, "exit-price", "", "exit price")
	cmd.Flags().StringVar(&f.stopLoss, "stop-loss", "", "stop loss price")
	cmd.Flags().StringVar(&f.target, "target", "", "target price")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "strategy ID (empty string clears it on update)")
	cmd.Flags().StringVar(&f.emotion, "emotion", "NEUTRAL", "state of mind (NEUTRAL, CONFIDENT, ANXIOUS, GREEDY, FEARFUL)")
	cmd.Flags().StringVar(&f.notes, "notes", "", "free-form notes")
	cmd.Flags().BoolVar(&f.backtest, "backtest", false, "mark as a backtest trade")
}

// apply overrides the fields of in whose flags were set. With all=true
// every flag is applied, which is how a new trade is built.
func (f *tradeFlags) apply(app *App, cmd *cobra.Command, in *ledger.TradeInput, all bool) error {
	set := func(name string) bool { return all || cmd.Flags().Changed(name) }
	loc := app.location()

	if set("type") {
		in.Type = models.TradeType(strings.ToUpper(f.tradeType))
	}
	if set("status") {
		in.Status = models.TradeStatus(strings.ToUpper(f.status))
	}
	if set("emotion") {
		in.Emotion = models.Emotion(strings.ToUpper(f.emotion))
	}
	if set("qty") {
		in.Quantity = f.quantity
	}
	if set("notes") {
		in.Notes = f.notes
	}
	if set("backtest") {
		in.IsBacktest = f.backtest
	}
	if set("strategy") {
		if f.strategy == "" {
			in.StrategyID = nil
		} else {
			id := f.strategy
			in.StrategyID = &id
		}
	}
	if set("entry-date") && f.entryDate != "" {
		d, err := ParseDate(f.entryDate, loc)
		if err != nil {
			return err
		}
		in.EntryDate = d
	}
	if set("exit-date") {
		if f.exitDate == "" {
			in.ExitDate = nil
		} else {
			d, err := ParseDate(f.exitDate, loc)
			if err != nil {
				return err
			}
			in.ExitDate = &d
		}
	}
	if set("price") && f.entryPrice != "" {
		p, err := ParseDecimal("price", f.entryPrice)
		if err != nil {
			return err
		}
		in.EntryPrice = p
	}

	optional := []struct {
		flag  string
		value string
		dst   **decimal.Decimal
	}{
		{"exit-price", f.exitPrice, &in.ExitPrice},
		{"stop-loss", f.stopLoss, &in.StopLoss},
		{"target", f.target, &in.Target},
	}
	for _, o := range optional {
		if !set(o.flag) {
			continue
		}
		if o.value == "" {
			*o.dst = nil
			continue
		}
		p, err := ParseDecimal(o.flag, o.value)
		if err != nil {
			return err
		}
		*o.dst = &p
	}
	return nil
}

// inputFromTrade returns the editable fields of a stored trade.
func inputFromTrade(t *models.Trade) ledger.TradeInput {
	return ledger.TradeInput{
		Symbol:     t.Symbol,
		Type:       t.Type,
		Status:     t.Status,
		EntryDate:  t.EntryDate,
		EntryPrice: t.EntryPrice,
		Quantity:   t.Quantity,
		ExitDate:   t.ExitDate,
		ExitPrice:  t.ExitPrice,
		StopLoss:   t.StopLoss,
		Target:     t.Target,
		StrategyID: t.StrategyID,
		Emotion:    t.Emotion,
		IsBacktest: t.IsBacktest,
		Notes:      t.Notes,
	}
}

func newTradeAddCmd(app *App) *cobra.Command {
	flags := &tradeFlags{}

	cmd := &cobra.Command{
		Use:   "add <symbol>",
		Short: "Record a trade",
		Example: `  journal trade add NABIL --price 1250 --qty 20
  journal trade add NICA --type SELL --price 900 --qty 50 --status CLOSED --exit-price 870 --exit-date 2024-03-05`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			in := ledger.TradeInput{Symbol: args[0]}
			if err := flags.apply(app, cmd, &in, true); err != nil {
				return err
			}
			if in.EntryDate.IsZero() {
				in.EntryDate = app.nowIn()
			}

			result, err := app.Ledger.CreateTrade(ctx, app.UserID, in)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(result)
			}

			t := result.Trade
			output.Success("✓ %s %s %s × %s @ %s recorded", t.Status, t.Type, t.Symbol, FormatQuantity(t.Quantity), FormatPrice(t.EntryPrice))
			output.Dim("ID: %s", t.ID)
			printReconcile(output, result.Reconcile)
			return nil
		},
	}

	flags.register(cmd)
	cmd.MarkFlagRequired("price")
	cmd.MarkFlagRequired("qty")

	return cmd
}

func newTradeUpdateCmd(app *App) *cobra.Command {
	flags := &tradeFlags{}
	var symbol string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a trade",
		Long:  "Change any journaled field of a trade. Only the flags given are changed.",
		Example: `  journal trade update 6f1c... --stop-loss 1180 --notes "moved stop"
  journal trade update 6f1c... --status OPEN --exit-price "" --exit-date ""`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			existing, err := app.Ledger.GetTrade(ctx, app.UserID, args[0])
			if err != nil {
				return err
			}
			in := inputFromTrade(existing)
			if cmd.Flags().Changed("symbol") {
				in.Symbol = symbol
			}
			if err := flags.apply(app, cmd, &in, false); err != nil {
				return err
			}

			result, err := app.Ledger.UpdateTrade(ctx, app.UserID, args[0], in)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(result)
			}
			output.Success("✓ Trade %s updated", result.Trade.ID)
			printReconcile(output, result.Reconcile)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&symbol, "symbol", "", "NEPSE symbol")

	return cmd
}

func newTradeCloseCmd(app *App) *cobra.Command {
	var price, date string

	cmd := &cobra.Command{
		Use:     "close <id>",
		Short:   "Close an open trade",
		Example: `  journal trade close 6f1c... --price 1320 --date 2024-03-12`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			existing, err := app.Ledger.GetTrade(ctx, app.UserID, args[0])
			if err != nil {
				return err
			}
			if existing.IsClosed() {
				return fmt.Errorf("trade %s is already closed", args[0])
			}

			exit, err := ParseDecimal("price", price)
			if err != nil {
				return err
			}
			exitDate := app.nowIn()
			if date != "" {
				if exitDate, err = ParseDate(date, app.location()); err != nil {
					return err
				}
			}

			in := inputFromTrade(existing)
			in.Status = models.StatusClosed
			in.ExitPrice = &exit
			in.ExitDate = &exitDate

			result, err := app.Ledger.UpdateTrade(ctx, app.UserID, args[0], in)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(result)
			}

			pnl, _ := result.Trade.PnL()
			output.Success("✓ %s closed @ %s, P&L %s", result.Trade.Symbol, FormatPrice(exit), output.FormatPnL(pnl))
			printReconcile(output, result.Reconcile)
			return nil
		},
	}

	cmd.Flags().StringVar(&price, "price", "", "exit price")
	cmd.Flags().StringVar(&date, "date", "", "exit date (YYYY-MM-DD, default: now)")
	cmd.MarkFlagRequired("price")

	return cmd
}

func newTradeDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a trade and reconcile the balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			res, err := app.Ledger.DeleteTrade(ctx, app.UserID, args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}
			output.Success("✓ Trade %s deleted", args[0])
			printReconcile(output, res)
			return nil
		},
	}
}

func newTradeListCmd(app *App) *cobra.Command {
	var symbol, status, strategy string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trades, newest entry first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			filter := store.TradeFilter{
				Symbol:     symbol,
				Status:     models.TradeStatus(strings.ToUpper(status)),
				StrategyID: strategy,
				Limit:      limit,
			}
			if filter.Status != "" && !filter.Status.Valid() {
				return fmt.Errorf("invalid --status %q: must be OPEN or CLOSED", status)
			}

			trades, err := app.Ledger.ListTrades(ctx, app.UserID, filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				if trades == nil {
					trades = []models.Trade{}
				}
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Info("No trades recorded.")
				return nil
			}

			loc := app.location()
			table := NewTable(output, "Entry", "Symbol", "Side", "Qty", "Entry Px", "Exit Px", "Status", "P&L", "ID")
			for i := range trades {
				t := &trades[i]
				pnl := "-"
				if v, ok := t.PnL(); ok {
					pnl = output.FormatPnL(v)
				}
				table.AddRow(
					FormatDate(t.EntryDate, loc),
					t.Symbol,
					string(t.Type),
					FormatQuantity(t.Quantity),
					FormatPrice(t.EntryPrice),
					FormatOptionalPrice(t.ExitPrice),
					string(t.Status),
					pnl,
					t.ID,
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "filter by symbol")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (OPEN or CLOSED)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "filter by strategy ID")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum trades to show (0 for all)")

	return cmd
}

func newTradeShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			t, err := app.Ledger.GetTrade(ctx, app.UserID, args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(t)
			}

			loc := app.location()
			pnl := "-"
			if v, ok := t.PnL(); ok {
				pnl = output.FormatPnL(v)
			}
			strategy := "-"
			if t.StrategyID != nil {
				strategy = *t.StrategyID
			}
			lines := []string{
				fmt.Sprintf("Status:     %s", t.Status),
				fmt.Sprintf("Quantity:   %s", FormatQuantity(t.Quantity)),
				fmt.Sprintf("Entry:      %s on %s", FormatPrice(t.EntryPrice), FormatDate(t.EntryDate, loc)),
				fmt.Sprintf("Exit:       %s on %s", FormatOptionalPrice(t.ExitPrice), FormatOptionalDate(t.ExitDate, loc)),
				fmt.Sprintf("Stop/Target: %s / %s", FormatOptionalPrice(t.StopLoss), FormatOptionalPrice(t.Target)),
				fmt.Sprintf("P&L:        %s", pnl),
				fmt.Sprintf("Strategy:   %s", strategy),
				fmt.Sprintf("Emotion:    %s", t.Emotion),
			}
			if t.IsBacktest {
				lines = append(lines, "Backtest:   yes")
			}
			output.Box(fmt.Sprintf("%s %s", t.Type, t.Symbol), lines)
			if t.Notes != "" {
				output.Println()
				output.Println(t.Notes)
			}
			return nil
		},
	}
}
