package portfolio

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "nepse-journal/internal/errors"
	"nepse-journal/internal/logging"
	"nepse-journal/internal/models"
	"nepse-journal/internal/store"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	ds, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds
}

func newTestService(t *testing.T, ds store.DataStore, opts ...Option) *Service {
	t.Helper()
	logger := logging.NewTestLogger()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(ds, NewReconciler(logger), logger, opts...)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func at(day int, hour int) time.Time {
	return time.Date(2024, 5, day, hour, 0, 0, 0, time.UTC)
}

func closedTrade(tradeType models.TradeType, entry, exit string, qty int64, exitDate *time.Time) models.Trade {
	e := dec(exit)
	return models.Trade{
		Symbol:     "NABIL",
		Type:       tradeType,
		Status:     models.StatusClosed,
		EntryPrice: dec(entry),
		ExitPrice:  &e,
		ExitDate:   exitDate,
		Quantity:   qty,
	}
}

func TestTradePnL(t *testing.T) {
	buy := closedTrade(models.TradeBuy, "100", "120", 50, nil)
	pnl, ok := buy.PnL()
	require.True(t, ok)
	assert.True(t, pnl.Equal(dec("1000")))

	sell := closedTrade(models.TradeSell, "100", "120", 50, nil)
	pnl, ok = sell.PnL()
	require.True(t, ok)
	assert.True(t, pnl.Equal(dec("-1000")))

	flat := closedTrade(models.TradeBuy, "100", "100", 50, nil)
	pnl, ok = flat.PnL()
	assert.True(t, ok, "a realized zero is still defined")
	assert.True(t, pnl.IsZero())

	open := buy
	open.Status = models.StatusOpen
	_, ok = open.PnL()
	assert.False(t, ok)

	noExit := buy
	noExit.ExitPrice = nil
	_, ok = noExit.PnL()
	assert.False(t, ok)
}

func TestRecompute(t *testing.T) {
	txns := []models.Transaction{
		{Type: models.Deposit, Amount: dec("5000")},
		{Type: models.Withdrawal, Amount: dec("2000")},
		{Type: "BONUS", Amount: dec("999")},
	}
	trades := []models.Trade{
		closedTrade(models.TradeBuy, "100", "120", 50, nil),
		closedTrade(models.TradeSell, "200", "210", 10, nil),
	}
	got := Recompute(dec("100000"), txns, trades)
	assert.True(t, got.Equal(dec("103900")), "got %s", got)
}

func TestProject_SameDayAppliesCashBeforePnL(t *testing.T) {
	d3 := at(3, 15)
	txns := []models.Transaction{
		{Type: models.Deposit, Amount: dec("500"), Date: at(3, 9)},
		{Type: models.Deposit, Amount: dec("100"), Date: at(1, 9)},
	}
	trades := []models.Trade{closedTrade(models.TradeBuy, "10", "12", 100, &d3)}

	points := Project(dec("1000"), txns, trades, time.UTC)
	require.Len(t, points, 2)
	assert.Equal(t, "2024-05-01", points[0].Date)
	assert.Equal(t, "May 01", points[0].Label)
	assert.True(t, points[0].Value.Equal(dec("1100")))
	assert.Equal(t, "2024-05-03", points[1].Date)
	assert.True(t, points[1].Value.Equal(dec("1800")))
}

func TestProject_ClosedTradeEdgeCases(t *testing.T) {
	d2 := at(2, 10)
	noExitPrice := closedTrade(models.TradeBuy, "10", "12", 1, &d2)
	noExitPrice.ExitPrice = nil
	undated := closedTrade(models.TradeBuy, "10", "20", 10, nil)
	open := closedTrade(models.TradeBuy, "10", "20", 10, &d2)
	open.Status = models.StatusOpen

	points := Project(dec("50"), nil, []models.Trade{noExitPrice, undated, open}, time.UTC)
	require.Len(t, points, 1, "a closed trade with an exit date marks its day even without P&L")
	assert.Equal(t, "2024-05-02", points[0].Date)
	assert.True(t, points[0].Value.Equal(dec("50")))
}

func TestProject_UsesLocationForDays(t *testing.T) {
	kathmandu, err := time.LoadLocation("Asia/Kathmandu")
	require.NoError(t, err)

	// 20:00 UTC on May 1 is already May 2 in Kathmandu.
	txns := []models.Transaction{
		{Type: models.Deposit, Amount: dec("10"), Date: time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)},
		{Type: models.Deposit, Amount: dec("10"), Date: time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC)},
	}

	assert.Len(t, Project(decimal.Zero, txns, nil, time.UTC), 2)
	local := Project(decimal.Zero, txns, nil, kathmandu)
	require.Len(t, local, 1)
	assert.Equal(t, "2024-05-02", local[0].Date)
	assert.True(t, local[0].Value.Equal(dec("20")))
}

func TestBuildDashboard(t *testing.T) {
	d4 := at(4, 12)
	p := &models.Portfolio{UserID: "alice", InitialCapital: dec("1000"), CurrentBalance: dec("1250")}
	ledger := &Ledger{
		Portfolio: p,
		Transactions: []models.Transaction{
			{ID: "t1", Type: models.Deposit, Amount: dec("300"), Date: at(1, 9)},
			{ID: "t2", Type: models.Withdrawal, Amount: dec("100"), Date: at(2, 9)},
			{ID: "t3", Type: models.Deposit, Amount: dec("25"), Date: at(3, 9)},
		},
		ClosedTrades: []models.Trade{closedTrade(models.TradeBuy, "10", "12.5", 10, &d4)},
	}

	d := BuildDashboard(ledger, 2, time.UTC)
	assert.True(t, d.TotalDeposits.Equal(dec("325")))
	assert.True(t, d.TotalWithdrawals.Equal(dec("100")))
	assert.Equal(t, 2, d.DepositCount)
	assert.Equal(t, 1, d.WithdrawalCount)
	assert.True(t, d.TotalPnL.Equal(dec("25")))
	assert.True(t, d.NetChange.Equal(dec("250")))
	assert.True(t, d.NetChangePercent.Equal(dec("25")))

	require.Len(t, d.Recent, 2)
	assert.Equal(t, "t3", d.Recent[0].Transaction.ID)
	assert.True(t, d.Recent[0].BalanceAfter.Equal(dec("1250")))
	assert.Equal(t, "t2", d.Recent[1].Transaction.ID)
	assert.True(t, d.Recent[1].BalanceAfter.Equal(dec("1225")))

	require.Len(t, d.History, 4)
	assert.True(t, d.History[3].Value.Equal(dec("1250")))
}

func TestBuildDashboard_ZeroCapital(t *testing.T) {
	p := &models.Portfolio{CurrentBalance: dec("500")}
	d := BuildDashboard(&Ledger{Portfolio: p}, 10, time.UTC)
	assert.True(t, d.NetChangePercent.IsZero())
	assert.Empty(t, d.Recent)
	require.Len(t, d.History, 1)
	assert.Equal(t, StartLabel, d.History[0].Label)
}

func TestService_GetBalanceCreatesPortfolio(t *testing.T) {
	ctx := context.Background()
	ds := newTestStore(t)
	svc := newTestService(t, ds)

	_, err := ds.GetPortfolio(ctx, "alice")
	require.True(t, apperrors.Is(err, apperrors.ErrPortfolioNotFound))

	balance, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	p, err := ds.GetPortfolio(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPortfolioName, p.Name)
	require.NotNil(t, p.ReconciledAt)
	assert.True(t, p.ReconciledAt.Equal(fixedNow))

	history, err := svc.GetBalanceHistory(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, StartLabel, history[0].Label)
}

func TestService_ReadRepairsStaleBalance(t *testing.T) {
	ctx := context.Background()
	ds := newTestStore(t)
	svc := newTestService(t, ds)

	p, err := svc.GetOrCreate(ctx, "alice")
	require.NoError(t, err)

	// Write behind the reconciler's back.
	require.NoError(t, ds.AddTransaction(ctx, &models.Transaction{
		ID: "dep-1", PortfolioID: p.ID, Type: models.Deposit, Amount: dec("750"), Date: at(10, 9),
	}))

	balance, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("750")))

	dash, err := svc.Dashboard(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, dash.DepositCount)
	require.Len(t, dash.Recent, 1)
	assert.True(t, dash.Recent[0].BalanceAfter.Equal(dec("750")))
}

func TestReconciler_IdempotentAndSkipsMissingPortfolio(t *testing.T) {
	ctx := context.Background()
	ds := newTestStore(t)
	rec := NewReconciler(logging.NewTestLogger())

	res, err := rec.Reconcile(ctx, ds, "nobody")
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	svc := newTestService(t, ds)
	p, err := svc.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, ds.AddTransaction(ctx, &models.Transaction{
		ID: "dep-1", PortfolioID: p.ID, Type: models.Deposit, Amount: dec("10"), Date: at(1, 9),
	}))

	first, err := rec.Reconcile(ctx, ds, "alice")
	require.NoError(t, err)
	assert.True(t, first.Changed)

	second, err := rec.Reconcile(ctx, ds, "alice")
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.True(t, first.NewBalance.Equal(second.NewBalance))
}

func TestRecalculateAll_ReportsChanges(t *testing.T) {
	ctx := context.Background()
	ds := newTestStore(t)
	svc := newTestService(t, ds)

	for _, user := range []string{"alice", "bob", "carol"} {
		_, err := svc.GetOrCreate(ctx, user)
		require.NoError(t, err)
	}
	bob, err := ds.GetPortfolio(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, ds.SaveBalance(ctx, bob.ID, dec("123"), fixedNow))

	report, err := svc.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Changes, 1)
	assert.Equal(t, "bob", report.Changes[0].UserID)
	assert.True(t, report.Changes[0].OldBalance.Equal(dec("123")))
	assert.True(t, report.Changes[0].NewBalance.IsZero())
}
