package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a journaled trade owned by a single user.
type Trade struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	Symbol     string           `json:"symbol"`
	Type       TradeType        `json:"type"`
	Status     TradeStatus      `json:"status"`
	EntryDate  time.Time        `json:"entry_date"`
	ExitDate   *time.Time       `json:"exit_date,omitempty"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	ExitPrice  *decimal.Decimal `json:"exit_price,omitempty"`
	Quantity   int64            `json:"quantity"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
	Target     *decimal.Decimal `json:"target,omitempty"`
	StrategyID *string          `json:"strategy_id,omitempty"`
	Emotion    Emotion          `json:"emotion"`
	IsBacktest bool             `json:"is_backtest"`
	Notes      string           `json:"notes"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// PnL returns the realized profit or loss of the trade.
// The second return value is false when the P&L is undefined: the trade is
// still open or was closed without an exit price. An undefined P&L is not
// the same as a realized zero.
func (t *Trade) PnL() (decimal.Decimal, bool) {
	if t.Status != StatusClosed || t.ExitPrice == nil {
		return decimal.Zero, false
	}
	diff := t.ExitPrice.Sub(t.EntryPrice)
	if t.Type == TradeSell {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromInt(t.Quantity)), true
}

// IsClosed reports whether the trade has been closed.
func (t *Trade) IsClosed() bool {
	return t.Status == StatusClosed
}

// Strategy is a named trading approach. Trades reference it weakly:
// deleting a strategy detaches its trades instead of deleting them.
type Strategy struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
