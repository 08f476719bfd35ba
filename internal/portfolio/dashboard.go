package portfolio

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"nepse-journal/internal/models"
)

// TransactionView is a cash transaction with the balance right after it.
type TransactionView struct {
	Transaction  models.Transaction `json:"transaction"`
	BalanceAfter decimal.Decimal    `json:"balance_after"`
}

// Dashboard is the read model behind the portfolio overview.
type Dashboard struct {
	Portfolio        models.Portfolio  `json:"portfolio"`
	TotalDeposits    decimal.Decimal   `json:"total_deposits"`
	TotalWithdrawals decimal.Decimal   `json:"total_withdrawals"`
	DepositCount     int               `json:"deposit_count"`
	WithdrawalCount  int               `json:"withdrawal_count"`
	TotalPnL         decimal.Decimal   `json:"total_pnl"`
	NetChange        decimal.Decimal   `json:"net_change"`
	NetChangePercent decimal.Decimal   `json:"net_change_percent"`
	Recent           []TransactionView `json:"recent_transactions"`
	History          []BalancePoint    `json:"history"`
}

// Dashboard reconciles the user's portfolio and summarizes it.
func (s *Service) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	ledger, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return BuildDashboard(ledger, s.recent, s.location), nil
}

// BuildDashboard summarizes a reconciled ledger snapshot. The balance after
// each recent transaction is walked back from the current balance, newest
// first.
func BuildDashboard(ledger *Ledger, recent int, loc *time.Location) *Dashboard {
	p := ledger.Portfolio
	d := &Dashboard{
		Portfolio:        *p,
		TotalDeposits:    decimal.Zero,
		TotalWithdrawals: decimal.Zero,
		TotalPnL:         decimal.Zero,
		NetChangePercent: decimal.Zero,
		Recent:           []TransactionView{},
		History:          Project(ledger.Portfolio.InitialCapital, ledger.Transactions, ledger.ClosedTrades, loc),
	}

	for i := range ledger.Transactions {
		t := &ledger.Transactions[i]
		switch t.Type {
		case models.Deposit:
			d.TotalDeposits = d.TotalDeposits.Add(t.Amount)
			d.DepositCount++
		case models.Withdrawal:
			d.TotalWithdrawals = d.TotalWithdrawals.Add(t.Amount)
			d.WithdrawalCount++
		}
	}

	for i := range ledger.ClosedTrades {
		if pnl, ok := ledger.ClosedTrades[i].PnL(); ok {
			d.TotalPnL = d.TotalPnL.Add(pnl)
		}
	}

	d.NetChange = p.CurrentBalance.Sub(p.InitialCapital)
	if p.InitialCapital.IsPositive() {
		d.NetChangePercent = d.NetChange.Div(p.InitialCapital).Mul(decimal.NewFromInt(100)).Round(2)
	}

	newest := make([]models.Transaction, len(ledger.Transactions))
	copy(newest, ledger.Transactions)
	sort.SliceStable(newest, func(i, j int) bool {
		return newest[i].Date.After(newest[j].Date)
	})
	if recent > 0 && len(newest) > recent {
		newest = newest[:recent]
	}

	balance := p.CurrentBalance
	for _, t := range newest {
		d.Recent = append(d.Recent, TransactionView{Transaction: t, BalanceAfter: balance})
		balance = balance.Sub(t.Signed())
	}

	return d
}
