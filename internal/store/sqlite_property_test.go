package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"nepse-journal/internal/models"
)

// Property: for any valid trade, saving it and reading it back yields the
// same journaled values, with prices exact to the paisa.
func TestProperty_TradeRoundTripConsistency(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trades_property.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbols := []string{"NABIL", "NICA", "HIDCL", "UPPER", "NTC", "SHIVM", "CHCL", "API", "GBIME", "NLIC"}
	base := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	seq := 0

	properties.Property("Trade round-trip: save then retrieve produces equivalent data", prop.ForAll(
		func(symbolIdx int, sell bool, closed bool, entryPaisa int64, exitPaisa int64, qty int64, days int) bool {
			ctx := context.Background()
			seq++

			trade := &models.Trade{
				ID:         fmt.Sprintf("trade-%d", seq),
				UserID:     "property",
				Symbol:     symbols[symbolIdx%len(symbols)],
				Type:       models.TradeBuy,
				Status:     models.StatusOpen,
				EntryDate:  base.AddDate(0, 0, days),
				EntryPrice: decimal.New(entryPaisa, -2),
				Quantity:   qty,
				Emotion:    models.EmotionNeutral,
				CreatedAt:  base,
				UpdatedAt:  base,
			}
			if sell {
				trade.Type = models.TradeSell
			}
			if closed {
				exit := decimal.New(exitPaisa, -2)
				exitDate := trade.EntryDate.Add(6 * time.Hour)
				trade.Status = models.StatusClosed
				trade.ExitPrice = &exit
				trade.ExitDate = &exitDate
			}

			if err := store.SaveTrade(ctx, trade); err != nil {
				t.Logf("Failed to save trade: %v", err)
				return false
			}

			got, err := store.GetTrade(ctx, trade.ID)
			if err != nil {
				t.Logf("Failed to get trade: %v", err)
				return false
			}

			if got.Symbol != trade.Symbol || got.Type != trade.Type || got.Status != trade.Status || got.Quantity != trade.Quantity {
				t.Logf("Field mismatch: %+v vs %+v", got, trade)
				return false
			}
			if !got.EntryPrice.Equal(trade.EntryPrice) || !got.EntryDate.Equal(trade.EntryDate) {
				t.Logf("Entry mismatch: %s@%s vs %s@%s", got.EntryPrice, got.EntryDate, trade.EntryPrice, trade.EntryDate)
				return false
			}

			wantPnL, wantOK := trade.PnL()
			gotPnL, gotOK := got.PnL()
			return wantOK == gotOK && wantPnL.Equal(gotPnL)
		},
		gen.IntRange(0, 100),
		gen.Bool(),
		gen.Bool(),
		gen.Int64Range(100, 500000),
		gen.Int64Range(100, 500000),
		gen.Int64Range(1, 100000),
		gen.IntRange(0, 365),
	))

	properties.TestingRun(t)
}
