package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "nepse-journal/internal/errors"
	"nepse-journal/internal/models"
)

var day = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createPortfolio(t *testing.T, s *SQLiteStore, userID string) *models.Portfolio {
	t.Helper()
	p := &models.Portfolio{
		ID:             "p-" + userID,
		UserID:         userID,
		Name:           models.DefaultPortfolioName,
		InitialCapital: decimal.RequireFromString("1000.50"),
		CurrentBalance: decimal.RequireFromString("1000.50"),
		CreatedAt:      day,
	}
	require.NoError(t, s.CreatePortfolio(context.Background(), p))
	return p
}

func TestPortfolioLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetPortfolio(ctx, "alice")
	assert.True(t, errors.Is(err, apperrors.ErrPortfolioNotFound))

	p := createPortfolio(t, s, "alice")

	got, err := s.GetPortfolio(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.True(t, got.InitialCapital.Equal(p.InitialCapital))
	assert.Nil(t, got.ReconciledAt)

	require.NoError(t, s.SaveBalance(ctx, p.ID, decimal.RequireFromString("2000.25"), day))
	got, err = s.GetPortfolioByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "2000.25", got.CurrentBalance.String())
	require.NotNil(t, got.ReconciledAt)
	assert.True(t, got.ReconciledAt.Equal(day))

	err = s.SaveBalance(ctx, "missing", decimal.Zero, day)
	assert.True(t, errors.Is(err, apperrors.ErrPortfolioNotFound))

	createPortfolio(t, s, "bob")
	all, err := s.ListPortfolios(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTransactions_OrderAndCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := createPortfolio(t, s, "alice")

	for i, typ := range []models.TransactionType{models.Deposit, models.Withdrawal, models.Deposit} {
		require.NoError(t, s.AddTransaction(ctx, &models.Transaction{
			ID:          string(rune('a' + i)),
			PortfolioID: p.ID,
			Type:        typ,
			Amount:      decimal.NewFromInt(int64(100 * (i + 1))),
			Date:        day.AddDate(0, 0, i),
		}))
	}

	oldest, err := s.GetTransactions(ctx, TransactionFilter{PortfolioID: p.ID})
	require.NoError(t, err)
	require.Len(t, oldest, 3)
	assert.Equal(t, "a", oldest[0].ID)
	assert.Equal(t, models.Withdrawal, oldest[1].Type)

	newest, err := s.GetTransactions(ctx, TransactionFilter{PortfolioID: p.ID, NewestFirst: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, "c", newest[0].ID)

	deposits, err := s.GetTransactions(ctx, TransactionFilter{PortfolioID: p.ID, Type: models.Deposit})
	require.NoError(t, err)
	assert.Len(t, deposits, 2)

	require.NoError(t, s.DeleteTransaction(ctx, "b"))
	assert.True(t, errors.Is(s.DeleteTransaction(ctx, "b"), apperrors.ErrTransactionNotFound))
	_, err = s.GetTransaction(ctx, "b")
	assert.True(t, errors.Is(err, apperrors.ErrTransactionNotFound))
}

func TestDeleteStrategy_NullsTradeReference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st := &models.Strategy{ID: "s1", UserID: "alice", Name: "Swing", CreatedAt: day}
	require.NoError(t, s.SaveStrategy(ctx, st))

	strategyID := st.ID
	trade := &models.Trade{
		ID:         "t1",
		UserID:     "alice",
		Symbol:     "NABIL",
		Type:       models.TradeBuy,
		Status:     models.StatusOpen,
		EntryDate:  day,
		EntryPrice: decimal.NewFromInt(500),
		Quantity:   10,
		StrategyID: &strategyID,
		Emotion:    models.EmotionConfident,
		CreatedAt:  day,
		UpdatedAt:  day,
	}
	require.NoError(t, s.SaveTrade(ctx, trade))

	byStrategy, err := s.GetTrades(ctx, TradeFilter{UserID: "alice", StrategyID: "s1"})
	require.NoError(t, err)
	assert.Len(t, byStrategy, 1)

	require.NoError(t, s.DeleteStrategy(ctx, "s1"))

	got, err := s.GetTrade(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got.StrategyID)
	assert.Equal(t, models.EmotionConfident, got.Emotion)
}

func TestGetTrades_Filters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	exit := decimal.NewFromInt(110)
	for i, status := range []models.TradeStatus{models.StatusOpen, models.StatusClosed, models.StatusClosed} {
		trade := &models.Trade{
			ID:         string(rune('a' + i)),
			UserID:     "alice",
			Symbol:     "NICA",
			Type:       models.TradeBuy,
			Status:     status,
			EntryDate:  day.AddDate(0, 0, i),
			EntryPrice: decimal.NewFromInt(100),
			Quantity:   1,
			Emotion:    models.EmotionNeutral,
			CreatedAt:  day,
			UpdatedAt:  day,
		}
		if status == models.StatusClosed {
			trade.ExitPrice = &exit
		}
		require.NoError(t, s.SaveTrade(ctx, trade))
	}

	closed, err := s.GetTrades(ctx, TradeFilter{UserID: "alice", Status: models.StatusClosed})
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, "c", closed[0].ID, "newest entry first")

	others, err := s.GetTrades(ctx, TradeFilter{UserID: "bob"})
	require.NoError(t, err)
	assert.Empty(t, others)

	limited, err := s.GetTrades(ctx, TradeFilter{UserID: "alice", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSavepoint_RollsBackOnlyItsOwnWork(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := createPortfolio(t, s, "alice")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx DataStore) error {
		if err := tx.AddTransaction(ctx, &models.Transaction{
			ID: "kept", PortfolioID: p.ID, Type: models.Deposit, Amount: decimal.NewFromInt(5), Date: day,
		}); err != nil {
			return err
		}
		spErr := tx.Savepoint(ctx, "inner", func() error {
			if err := tx.SaveBalance(ctx, p.ID, decimal.NewFromInt(999), day); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, spErr, boom)
		return nil
	})
	require.NoError(t, err)

	_, err = s.GetTransaction(ctx, "kept")
	assert.NoError(t, err)
	got, err := s.GetPortfolio(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1000.5", got.CurrentBalance.String())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := createPortfolio(t, s, "alice")

	err := s.WithTx(ctx, func(tx DataStore) error {
		if err := tx.AddTransaction(ctx, &models.Transaction{
			ID: "gone", PortfolioID: p.ID, Type: models.Deposit, Amount: decimal.NewFromInt(5), Date: day,
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	_, err = s.GetTransaction(ctx, "gone")
	assert.True(t, errors.Is(err, apperrors.ErrTransactionNotFound))
}
