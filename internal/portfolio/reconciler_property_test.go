package portfolio

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"nepse-journal/internal/models"
)

var baseDay = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

func newProperties() *gopter.Properties {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	return gopter.NewProperties(parameters)
}

// buildTransactions turns signed paisa amounts into transactions on
// consecutive days: positive values are deposits, the rest withdrawals.
func buildTransactions(amounts []int64) []models.Transaction {
	txns := make([]models.Transaction, 0, len(amounts))
	for i, a := range amounts {
		t := models.Transaction{
			ID:     string(rune('a' + i%26)),
			Type:   models.Deposit,
			Amount: decimal.New(a, -2),
			Date:   baseDay.AddDate(0, 0, i),
		}
		if a <= 0 {
			t.Type = models.Withdrawal
			t.Amount = decimal.New(-a, -2)
		}
		txns = append(txns, t)
	}
	return txns
}

// buildClosedTrades turns price moves into closed BUY trades of 10 shares
// at an entry of 100, exiting on consecutive days.
func buildClosedTrades(moves []int64) []models.Trade {
	trades := make([]models.Trade, 0, len(moves))
	for i, m := range moves {
		exitDay := baseDay.AddDate(0, 0, i)
		exit := decimal.NewFromInt(100 + m)
		trades = append(trades, models.Trade{
			Type:       models.TradeBuy,
			Status:     models.StatusClosed,
			EntryDate:  exitDay.AddDate(0, 0, -1),
			EntryPrice: decimal.NewFromInt(100),
			Quantity:   10,
			ExitDate:   &exitDay,
			ExitPrice:  &exit,
		})
	}
	return trades
}

func reversed[T any](in []T) []T {
	out := make([]T, len(in))
	for i := range in {
		out[len(in)-1-i] = in[i]
	}
	return out
}

func TestProperty_RecomputeIsDeterministic(t *testing.T) {
	properties := newProperties()

	properties.Property("recompute twice yields the same balance", prop.ForAll(
		func(capital int64, amounts []int64, moves []int64) bool {
			c := decimal.NewFromInt(capital)
			txns := buildTransactions(amounts)
			trades := buildClosedTrades(moves)
			return Recompute(c, txns, trades).Equal(Recompute(c, txns, trades))
		},
		gen.Int64Range(0, 10000000),
		gen.SliceOf(gen.Int64Range(-500000, 500000)),
		gen.SliceOf(gen.Int64Range(-90, 90)),
	))

	properties.TestingRun(t)
}

func TestProperty_RecomputeIgnoresOrder(t *testing.T) {
	properties := newProperties()

	properties.Property("reordering the ledger does not change the balance", prop.ForAll(
		func(capital int64, amounts []int64, moves []int64) bool {
			c := decimal.NewFromInt(capital)
			txns := buildTransactions(amounts)
			trades := buildClosedTrades(moves)
			return Recompute(c, txns, trades).Equal(Recompute(c, reversed(txns), reversed(trades)))
		},
		gen.Int64Range(0, 10000000),
		gen.SliceOf(gen.Int64Range(-500000, 500000)),
		gen.SliceOf(gen.Int64Range(-90, 90)),
	))

	properties.TestingRun(t)
}

func TestProperty_EmptyLedgerIsInitialCapital(t *testing.T) {
	properties := newProperties()

	properties.Property("no transactions and no closed trades yield the initial capital", prop.ForAll(
		func(capital int64) bool {
			c := decimal.New(capital, -2)
			if !Recompute(c, nil, nil).Equal(c) {
				return false
			}
			points := Project(c, nil, nil, time.UTC)
			return len(points) == 1 && points[0].Label == StartLabel && points[0].Value.Equal(c)
		},
		gen.Int64Range(0, 1000000000),
	))

	properties.TestingRun(t)
}

func TestProperty_DepositWithdrawRoundTrip(t *testing.T) {
	properties := newProperties()

	properties.Property("a deposit followed by an equal withdrawal restores the balance", prop.ForAll(
		func(capital int64, amounts []int64, x int64) bool {
			c := decimal.NewFromInt(capital)
			txns := buildTransactions(amounts)
			before := Recompute(c, txns, nil)

			amount := decimal.New(x, -2)
			txns = append(txns,
				models.Transaction{Type: models.Deposit, Amount: amount, Date: baseDay},
				models.Transaction{Type: models.Withdrawal, Amount: amount, Date: baseDay},
			)
			return Recompute(c, txns, nil).Equal(before)
		},
		gen.Int64Range(0, 10000000),
		gen.SliceOf(gen.Int64Range(-500000, 500000)),
		gen.Int64Range(1, 100000000),
	))

	properties.TestingRun(t)
}

func TestProperty_UndefinedPnLIsExcluded(t *testing.T) {
	properties := newProperties()

	properties.Property("open trades and closed trades without exit price contribute nothing", prop.ForAll(
		func(capital int64, moves []int64, entry int64, qty int64) bool {
			c := decimal.NewFromInt(capital)
			trades := buildClosedTrades(moves)
			before := Recompute(c, nil, trades)

			exit := decimal.NewFromInt(entry + 7)
			day := baseDay
			trades = append(trades,
				models.Trade{Type: models.TradeBuy, Status: models.StatusOpen, EntryPrice: decimal.NewFromInt(entry), Quantity: qty, ExitPrice: &exit},
				models.Trade{Type: models.TradeSell, Status: models.StatusClosed, EntryPrice: decimal.NewFromInt(entry), Quantity: qty, ExitDate: &day},
			)
			return Recompute(c, nil, trades).Equal(before)
		},
		gen.Int64Range(0, 10000000),
		gen.SliceOf(gen.Int64Range(-90, 90)),
		gen.Int64Range(1, 5000),
		gen.Int64Range(1, 10000),
	))

	properties.TestingRun(t)
}

func TestProperty_HistoryEndsAtBalance(t *testing.T) {
	properties := newProperties()

	properties.Property("history dates ascend and the last point equals the balance", prop.ForAll(
		func(capital int64, amounts []int64, moves []int64) bool {
			c := decimal.NewFromInt(capital)
			txns := buildTransactions(amounts)
			trades := buildClosedTrades(moves)

			points := Project(c, reversed(txns), trades, time.UTC)
			if len(points) == 0 {
				return false
			}
			for i := 1; i < len(points); i++ {
				if points[i].Date <= points[i-1].Date {
					return false
				}
			}
			return points[len(points)-1].Value.Equal(Recompute(c, txns, trades))
		},
		gen.Int64Range(0, 10000000),
		gen.SliceOf(gen.Int64Range(-500000, 500000)),
		gen.SliceOf(gen.Int64Range(-90, 90)),
	))

	properties.TestingRun(t)
}
