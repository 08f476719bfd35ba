package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPortfolioName is used for portfolios created on first access.
const DefaultPortfolioName = "My Portfolio"

// Portfolio is the per-user cash account. CurrentBalance is a cache of
// the reconciled value and is only written by the reconciler.
type Portfolio struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Name           string          `json:"name"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	CreatedAt      time.Time       `json:"created_at"`
	ReconciledAt   *time.Time      `json:"reconciled_at,omitempty"`
}

// Transaction is an entry in a portfolio's cash ledger. Transactions are
// created and deleted, never amended.
type Transaction struct {
	ID          string          `json:"id"`
	PortfolioID string          `json:"portfolio_id"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
}

// Signed returns the amount as it applies to the balance: positive for
// deposits, negative for withdrawals and zero for unknown types.
func (t *Transaction) Signed() decimal.Decimal {
	switch t.Type {
	case Deposit:
		return t.Amount
	case Withdrawal:
		return t.Amount.Neg()
	default:
		return decimal.Zero
	}
}
