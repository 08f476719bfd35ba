package ledger

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
	"nepse-journal/internal/logging"
	"nepse-journal/internal/models"
	"nepse-journal/internal/portfolio"
	"nepse-journal/internal/security"
	"nepse-journal/internal/store"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

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
	rec := portfolio.NewReconciler(logger)
	rec.SetClock(func() time.Time { return testNow })
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewService(ds, rec, logger, opts...)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func setCapital(t *testing.T, svc *Service, userID, capital string) *models.Portfolio {
	t.Helper()
	p, err := svc.UpdateSettings(context.Background(), userID, SettingsInput{InitialCapital: decPtr(capital)})
	require.NoError(t, err)
	return p
}

func storedBalance(t *testing.T, ds store.DataStore, userID string) decimal.Decimal {
	t.Helper()
	p, err := ds.GetPortfolio(context.Background(), userID)
	require.NoError(t, err)
	return p.CurrentBalance
}

func closedBuy(entry, exit string, qty int64, day time.Time) TradeInput {
	return TradeInput{
		Symbol:     "NABIL",
		Type:       models.TradeBuy,
		Status:     models.StatusClosed,
		EntryDate:  day.Add(-24 * time.Hour),
		EntryPrice: dec(entry),
		Quantity:   qty,
		ExitDate:   &day,
		ExitPrice:  decPtr(exit),
	}
}

func TestLedgerScenario(t *testing.T) {
	ctx := context.Background()
	ds := newTestStore(t)
	svc := newTestService(t, ds)

	p := setCapital(t, svc, "alice", "100000")
	assert.True(t, p.CurrentBalance.Equal(dec("100000")))

	deposit, res, err := svc.AddTransaction(ctx, "alice", TransactionInput{Type: models.Deposit, Amount: dec("5000")})
	require.NoError(t, err)
	assert.True(t, res.NewBalance.Equal(dec("105000")), "got %s", res.NewBalance)

	tr, err := svc.CreateTrade(ctx, "alice", closedBuy("100", "120", 50, testNow))
	require.NoError(t, err)
	assert.True(t, tr.Reconcile.NewBalance.Equal(dec("106000")), "got %s", tr.Reconcile.NewBalance)

	_, res, err = svc.AddTransaction(ctx, "alice", TransactionInput{Type: models.Withdrawal, Amount: dec("2000")})
	require.NoError(t, err)
	assert.True(t, res.NewBalance.Equal(dec("104000")), "got %s", res.NewBalance)

	res, err = svc.DeleteTransaction(ctx, "alice", deposit.ID)
	require.NoError(t, err)
	assert.True(t, res.NewBalance.Equal(dec("99000")), "got %s", res.NewBalance)
	assert.True(t, storedBalance(t, ds, "alice").Equal(dec("99000")))
}

func TestAddTransaction_RequiresPortfolio(t *testing.T) {
	svc := newTestService(t, newTestStore(t))

	_, _, err := svc.AddTransaction(context.Background(), "bob", TransactionInput{Type: models.Deposit, Amount: dec("10")})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrPortfolioNotFound))
}

func TestAddTransaction_RejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	setCapital(t, svc, "alice", "1000")

	for _, amount := range []string{"0", "-50"} {
		_, _, err := svc.AddTransaction(ctx, "alice", TransactionInput{Type: models.Deposit, Amount: dec(amount)})
		require.Error(t, err, amount)
		assert.True(t, apperrors.Is(err, apperrors.ErrInputValidation), amount)
	}

	lenient := newTestService(t, ds, WithValidator(security.NewInputValidator(false)))
	_, res, err := lenient.AddTransaction(ctx, "alice", TransactionInput{Type: models.Deposit, Amount: dec("-50")})
	require.NoError(t, err)
	assert.True(t, res.NewBalance.Equal(dec("950")), "negative amounts flow through unchanged when not strict")
}

func TestTradeWithoutPortfolio_SkipsReconciliation(t *testing.T) {
	ctx := context.Background()
	ds := newTestStore(t)
	svc := newTestService(t, ds)

	tr, err := svc.CreateTrade(ctx, "carol", closedBuy("10", "12", 5, testNow))
	require.NoError(t, err)
	assert.True(t, tr.Reconcile.Skipped)

	_, err = ds.GetPortfolio(ctx, "carol")
	assert.True(t, apperrors.Is(err, apperrors.ErrPortfolioNotFound), "mutation path must not create a portfolio")

	saved, err := svc.GetTrade(ctx, "carol", tr.Trade.ID)
	require.NoError(t, err)
	assert.Equal(t, "NABIL", saved.Symbol)
}

func TestUpdateTrade_CloseAndReopen(t *testing.T) {
	ctx := context.Background()
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	setCapital(t, svc, "alice", "1000")

	open := TradeInput{
		Symbol:     "nica",
		Type:       models.TradeSell,
		EntryDate:  testNow.Add(-48 * time.Hour),
		EntryPrice: dec("500"),
		Quantity:   10,
	}
	created, err := svc.CreateTrade(ctx, "alice", open)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, created.Trade.Status)
	assert.Equal(t, "NICA", created.Trade.Symbol)
	assert.True(t, created.Reconcile.NewBalance.Equal(dec("1000")), "open trades do not move the balance")

	closed := open
	closed.Status = models.StatusClosed
	closed.ExitDate = &testNow
	closed.ExitPrice = decPtr("450")
	updated, err := svc.UpdateTrade(ctx, "alice", created.Trade.ID, closed)
	require.NoError(t, err)
	assert.True(t, updated.Reconcile.NewBalance.Equal(dec("1500")), "short sold 500 covered 450 x10, got %s", updated.Reconcile.NewBalance)

	// Closed without exit price: P&L is undefined and excluded.
	closed.ExitPrice = nil
	updated, err = svc.UpdateTrade(ctx, "alice", created.Trade.ID, closed)
	require.NoError(t, err)
	assert.True(t, updated.Reconcile.NewBalance.Equal(dec("1000")))

	res, err := svc.DeleteTrade(ctx, "alice", created.Trade.ID)
	require.NoError(t, err)
	assert.True(t, res.NewBalance.Equal(dec("1000")))
}

func TestTradeOwnership(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestStore(t))

	tr, err := svc.CreateTrade(ctx, "alice", closedBuy("10", "11", 1, testNow))
	require.NoError(t, err)

	_, err = svc.GetTrade(ctx, "mallory", tr.Trade.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrTradeNotFound))

	_, err = svc.DeleteTrade(ctx, "mallory", tr.Trade.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrTradeNotFound))

	_, err = svc.GetTrade(ctx, "alice", tr.Trade.ID)
	assert.NoError(t, err)
}

func TestDeleteStrategy_DetachesTrades(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestStore(t))

	st, err := svc.CreateStrategy(ctx, "alice", "Breakout", "volume breakouts")
	require.NoError(t, err)

	in := closedBuy("100", "110", 10, testNow)
	in.StrategyID = &st.ID
	tr, err := svc.CreateTrade(ctx, "alice", in)
	require.NoError(t, err)

	_, err = svc.CreateTrade(ctx, "bob", in)
	assert.True(t, apperrors.Is(err, apperrors.ErrStrategyNotFound), "strategy of another user")

	require.NoError(t, svc.DeleteStrategy(ctx, "alice", st.ID))

	saved, err := svc.GetTrade(ctx, "alice", tr.Trade.ID)
	require.NoError(t, err)
	assert.Nil(t, saved.StrategyID)

	strategies, err := svc.ListStrategies(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, strategies)
}

func TestReadOnlyMode_BlocksWrites(t *testing.T) {
	ctx := context.Background()
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	setCapital(t, svc, "alice", "1000")

	ro := newTestService(t, ds, WithAccessController(security.NewAccessController(true, nil)))
	_, _, err := ro.AddTransaction(ctx, "alice", TransactionInput{Type: models.Deposit, Amount: dec("10")})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrReadOnlyMode))
	assert.True(t, storedBalance(t, ds, "alice").Equal(dec("1000")))
}

func TestAuditTrail(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := security.DefaultAuditConfig()
	cfg.LogDir = dir
	al, err := security.NewAuditLogger(cfg)
	require.NoError(t, err)
	defer al.Close()

	svc := newTestService(t, newTestStore(t), WithAuditLogger(al))
	setCapital(t, svc, "alice", "1000")
	_, _, err = svc.AddTransaction(ctx, "alice", TransactionInput{Type: models.Deposit, Amount: dec("10")})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "audit.log"))
}

// failingBalanceStore fails every balance write so reconciliation fails
// after the ledger write succeeded.
type failingBalanceStore struct {
	store.DataStore
}

var errBalanceWrite = errors.New("balance write failed")

func (f *failingBalanceStore) WithTx(ctx context.Context, fn func(tx store.DataStore) error) error {
	return f.DataStore.WithTx(ctx, func(tx store.DataStore) error {
		return fn(&failingBalanceStore{DataStore: tx})
	})
}

func (f *failingBalanceStore) SaveBalance(ctx context.Context, portfolioID string, balance decimal.Decimal, reconciledAt time.Time) error {
	return errBalanceWrite
}

func TestReconcileFailure_DoesNotRollBackMutation(t *testing.T) {
	ctx := context.Background()
	ds := newTestStore(t)
	setCapital(t, newTestService(t, ds), "alice", "1000")

	svc := newTestService(t, &failingBalanceStore{DataStore: ds})
	txn, res, err := svc.AddTransaction(ctx, "alice", TransactionInput{Type: models.Deposit, Amount: dec("500")})
	require.NoError(t, err, "reconciliation failure must not fail the mutation")
	assert.False(t, res.Changed)

	txns, err := svc.ListTransactions(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, txn.ID, txns[0].ID)

	// The cached balance is stale until the next successful pass.
	assert.True(t, storedBalance(t, ds, "alice").Equal(dec("1000")))

	rec := portfolio.NewReconciler(logging.NewTestLogger())
	report, err := rec.RecalculateAll(ctx, ds)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.True(t, storedBalance(t, ds, "alice").Equal(dec("1500")))
}
