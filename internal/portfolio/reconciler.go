// Package portfolio keeps each user's cached portfolio balance consistent
// with the cash and trade ledgers, and projects the balance history.
package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "nepse-journal/internal/errors"
	"nepse-journal/internal/logging"
	"nepse-journal/internal/models"
	"nepse-journal/internal/store"
)

// Recompute derives a portfolio balance from its full ledger: the initial
// capital, plus deposits, minus withdrawals, plus the realized P&L of every
// closed trade. Open trades and closed trades without an exit price are
// skipped. The result does not depend on the order of either slice.
func Recompute(initialCapital decimal.Decimal, txns []models.Transaction, trades []models.Trade) decimal.Decimal {
	balance := initialCapital
	for i := range txns {
		balance = balance.Add(txns[i].Signed())
	}
	for i := range trades {
		if !trades[i].IsClosed() {
			continue
		}
		if pnl, ok := trades[i].PnL(); ok {
			balance = balance.Add(pnl)
		}
	}
	return balance
}

// Ledger is a snapshot of everything that contributes to one balance.
type Ledger struct {
	Portfolio    *models.Portfolio
	Transactions []models.Transaction
	ClosedTrades []models.Trade
}

// Balance recomputes the balance of the snapshot.
func (l *Ledger) Balance() decimal.Decimal {
	return Recompute(l.Portfolio.InitialCapital, l.Transactions, l.ClosedTrades)
}

// LoadLedger reads the full cash ledger and the closed trades of the
// portfolio's owner.
func LoadLedger(ctx context.Context, ds store.DataStore, p *models.Portfolio) (*Ledger, error) {
	txns, err := ds.GetTransactions(ctx, store.TransactionFilter{PortfolioID: p.ID})
	if err != nil {
		return nil, apperrors.Wrap(err, "loading cash ledger")
	}
	trades, err := ds.GetTrades(ctx, store.TradeFilter{UserID: p.UserID, Status: models.StatusClosed})
	if err != nil {
		return nil, apperrors.Wrap(err, "loading closed trades")
	}
	return &Ledger{Portfolio: p, Transactions: txns, ClosedTrades: trades}, nil
}

// Result describes one reconciliation pass.
type Result struct {
	UserID      string          `json:"user_id"`
	PortfolioID string          `json:"portfolio_id,omitempty"`
	Skipped     bool            `json:"skipped"`
	OldBalance  decimal.Decimal `json:"old_balance"`
	NewBalance  decimal.Decimal `json:"new_balance"`
	Changed     bool            `json:"changed"`
}

// Mutation identifies the ledger change that requires a reconciliation.
type Mutation struct {
	UserID string
	Ledger string // "trade", "cash" or "portfolio"
	ID     string
	Op     models.MutationOp
}

// Reconciler recomputes and stores cached portfolio balances.
type Reconciler struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewReconciler creates a new Reconciler.
func NewReconciler(logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		logger: logging.WithComponent(logger, "reconciler"),
		now:    time.Now,
	}
}

// SetClock replaces the clock used for reconciliation timestamps.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Reconcile recomputes the balance of the portfolio owned by userID from
// the full ledger and stores it. A user without a portfolio is skipped.
func (r *Reconciler) Reconcile(ctx context.Context, ds store.DataStore, userID string) (Result, error) {
	p, err := ds.GetPortfolio(ctx, userID)
	if apperrors.Is(err, apperrors.ErrPortfolioNotFound) {
		return Result{UserID: userID, Skipped: true}, nil
	}
	if err != nil {
		return Result{UserID: userID}, apperrors.NewReconcileError(userID, err)
	}
	return r.ReconcilePortfolio(ctx, ds, p)
}

// ReconcilePortfolio recomputes and stores the balance of p. On success
// p.CurrentBalance and p.ReconciledAt reflect the stored values.
func (r *Reconciler) ReconcilePortfolio(ctx context.Context, ds store.DataStore, p *models.Portfolio) (Result, error) {
	res := Result{UserID: p.UserID, PortfolioID: p.ID, OldBalance: p.CurrentBalance}

	ledger, err := LoadLedger(ctx, ds, p)
	if err != nil {
		return res, apperrors.NewReconcileError(p.UserID, err)
	}

	res.NewBalance = ledger.Balance()
	res.Changed = !res.NewBalance.Equal(res.OldBalance)

	at := r.now()
	if err := ds.SaveBalance(ctx, p.ID, res.NewBalance, at); err != nil {
		return res, apperrors.NewReconcileError(p.UserID, err)
	}
	p.CurrentBalance = res.NewBalance
	p.ReconciledAt = &at

	logging.LogReconcile(r.logger, p.UserID, res.OldBalance.StringFixed(2), res.NewBalance.StringFixed(2), res.Changed)
	return res, nil
}

// OnMutation reconciles the owner's portfolio after a ledger mutation.
//
// It runs inside a savepoint of ds so a failed pass rolls back only its own
// writes. Failures are logged and swallowed: the mutation itself always
// stands, and the balance stays stale until the next successful pass.
func (r *Reconciler) OnMutation(ctx context.Context, ds store.DataStore, m Mutation) Result {
	var res Result
	err := ds.Savepoint(ctx, "reconcile", func() error {
		var err error
		res, err = r.Reconcile(ctx, ds, m.UserID)
		return err
	})
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("user_id", m.UserID).
			Str("ledger", m.Ledger).
			Str("op", string(m.Op)).
			Str("id", m.ID).
			Msg("Reconciliation failed, balance left stale")
		return Result{UserID: m.UserID}
	}
	if res.Skipped {
		r.logger.Debug().
			Str("user_id", m.UserID).
			Str("ledger", m.Ledger).
			Msg("No portfolio yet, reconciliation skipped")
	}
	return res
}

// RecalcReport summarizes a bulk reconciliation.
type RecalcReport struct {
	Total   int      `json:"total"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Changes []Result `json:"changes"`
}

// RecalculateAll reconciles every portfolio, each in its own transaction,
// and reports how many stored balances changed. A failure on one portfolio
// does not stop the others.
func (r *Reconciler) RecalculateAll(ctx context.Context, ds store.DataStore) (RecalcReport, error) {
	portfolios, err := ds.ListPortfolios(ctx)
	if err != nil {
		return RecalcReport{}, fmt.Errorf("listing portfolios: %w", err)
	}

	report := RecalcReport{Changes: []Result{}}
	for i := range portfolios {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		userID := portfolios[i].UserID
		var res Result
		err := ds.WithTx(ctx, func(tx store.DataStore) error {
			var err error
			res, err = r.Reconcile(ctx, tx, userID)
			return err
		})
		report.Total++
		if err != nil {
			report.Failed++
			r.logger.Error().Err(err).Str("user_id", userID).Msg("Recalculation failed")
			continue
		}
		if res.Changed {
			report.Updated++
			report.Changes = append(report.Changes, res)
		}
	}

	r.logger.Info().
		Int("total", report.Total).
		Int("updated", report.Updated).
		Int("failed", report.Failed).
		Msg("Recalculated portfolio balances")
	return report, nil
}
