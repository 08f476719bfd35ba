// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	apperrors "nepse-journal/internal/errors"
	"nepse-journal/internal/models"
)

// querier is the subset of *sql.DB and *sql.Tx used by the store.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
	q  querier
	tx *sql.Tx
}

// Options tunes the SQLite connection.
type Options struct {
	BusyTimeout time.Duration
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithOptions(dbPath, Options{BusyTimeout: 5 * time.Second})
}

// NewSQLiteStoreWithOptions creates a new SQLite-based data store.
//
// Write transactions are opened IMMEDIATE so that a ledger mutation and the
// reconciliation that follows it read committed state under the database
// write lock. Foreign keys are enforced so deleting a strategy detaches its
// trades.
func NewSQLiteStoreWithOptions(dbPath string, opts Options) (*SQLiteStore, error) {
	busy := opts.BusyTimeout.Milliseconds()
	if busy <= 0 {
		busy = 5000
	}
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on&_txlock=immediate", dbPath, busy)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db, q: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
// Monetary columns are TEXT so decimal values round-trip without loss.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One portfolio per user
	CREATE TABLE IF NOT EXISTS portfolios (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		initial_capital TEXT NOT NULL DEFAULT '0',
		current_balance TEXT NOT NULL DEFAULT '0',
		created_at DATETIME NOT NULL,
		reconciled_at DATETIME
	);

	-- Cash ledger
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		date DATETIME NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (portfolio_id) REFERENCES portfolios(id) ON DELETE CASCADE
	);

	-- Strategies
	CREATE TABLE IF NOT EXISTS strategies (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	-- Trade ledger
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		trade_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'OPEN',
		entry_date DATETIME NOT NULL,
		exit_date DATETIME,
		entry_price TEXT NOT NULL,
		exit_price TEXT,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		stop_loss TEXT,
		target TEXT,
		strategy_id TEXT,
		emotion TEXT NOT NULL DEFAULT 'NEUTRAL',
		is_backtest INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (strategy_id) REFERENCES strategies(id) ON DELETE SET NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_portfolio ON transactions(portfolio_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date);
	CREATE INDEX IF NOT EXISTS idx_trades_user ON trades(user_id);
	CREATE INDEX IF NOT EXISTS idx_trades_user_status ON trades(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy_id);
	CREATE INDEX IF NOT EXISTS idx_strategies_user ON strategies(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.tx != nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// IsBusy reports whether err is a transient SQLite lock error.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// ============================================================================
// Units of Work
// ============================================================================

// WithTx runs fn inside a single database transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx DataStore) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLiteStore{db: s.db, q: tx, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Savepoint runs fn inside a savepoint of the bound transaction. Outside a
// transaction there is nothing to roll back to, so fn runs directly.
func (s *SQLiteStore) Savepoint(ctx context.Context, name string, fn func() error) error {
	if s.tx == nil {
		return fn()
	}

	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}

	if fnErr := fn(); fnErr != nil {
		if _, err := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
			return fmt.Errorf("failed to roll back savepoint %s: %v (after %w)", name, err, fnErr)
		}
		if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
			return fmt.Errorf("failed to release savepoint %s: %v (after %w)", name, err, fnErr)
		}
		return fnErr
	}

	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}

// ============================================================================
// Portfolio Methods
// ============================================================================

const portfolioColumns = "id, user_id, name, initial_capital, current_balance, created_at, reconciled_at"

// GetPortfolio retrieves the portfolio owned by userID.
func (s *SQLiteStore) GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+portfolioColumns+" FROM portfolios WHERE user_id = ?", userID)
	return scanPortfolio(row)
}

// GetPortfolioByID retrieves a portfolio by its ID.
func (s *SQLiteStore) GetPortfolioByID(ctx context.Context, id string) (*models.Portfolio, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+portfolioColumns+" FROM portfolios WHERE id = ?", id)
	return scanPortfolio(row)
}

func scanPortfolio(row *sql.Row) (*models.Portfolio, error) {
	var p models.Portfolio
	var reconciledAt sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.InitialCapital, &p.CurrentBalance, &p.CreatedAt, &reconciledAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan portfolio: %w", err)
	}
	if reconciledAt.Valid {
		t := reconciledAt.Time
		p.ReconciledAt = &t
	}
	return &p, nil
}

// CreatePortfolio inserts a new portfolio.
func (s *SQLiteStore) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO portfolios (id, user_id, name, initial_capital, current_balance, created_at, reconciled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.UserID, p.Name, p.InitialCapital.String(), p.CurrentBalance.String(), p.CreatedAt.UTC(), nullTime(p.ReconciledAt))
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

// UpdatePortfolioSettings updates the user-editable portfolio fields.
func (s *SQLiteStore) UpdatePortfolioSettings(ctx context.Context, p *models.Portfolio) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE portfolios SET name = ?, initial_capital = ? WHERE id = ?
	`, p.Name, p.InitialCapital.String(), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	return requireAffected(res, apperrors.ErrPortfolioNotFound)
}

// SaveBalance stores a reconciled balance and the time it was computed.
func (s *SQLiteStore) SaveBalance(ctx context.Context, portfolioID string, balance decimal.Decimal, reconciledAt time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE portfolios SET current_balance = ?, reconciled_at = ? WHERE id = ?
	`, balance.String(), reconciledAt.UTC(), portfolioID)
	if err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return requireAffected(res, apperrors.ErrPortfolioNotFound)
}

// ListPortfolios returns every portfolio ordered by creation time.
func (s *SQLiteStore) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+portfolioColumns+" FROM portfolios ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []models.Portfolio
	for rows.Next() {
		var p models.Portfolio
		var reconciledAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.InitialCapital, &p.CurrentBalance, &p.CreatedAt, &reconciledAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		if reconciledAt.Valid {
			t := reconciledAt.Time
			p.ReconciledAt = &t
		}
		portfolios = append(portfolios, p)
	}

	return portfolios, rows.Err()
}

// ============================================================================
// Cash Ledger Methods
// ============================================================================

// AddTransaction appends a transaction to a portfolio's cash ledger.
func (s *SQLiteStore) AddTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO transactions (id, portfolio_id, transaction_type, amount, date, description)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.PortfolioID, string(t.Type), t.Amount.String(), t.Date.UTC(), t.Description)
	if err != nil {
		return fmt.Errorf("failed to add transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a single transaction.
func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.q.QueryRowContext(ctx, `
		SELECT id, portfolio_id, transaction_type, amount, date, description FROM transactions WHERE id = ?
	`, id).Scan(&t.ID, &t.PortfolioID, &t.Type, &t.Amount, &t.Date, &t.Description)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &t, nil
}

// DeleteTransaction removes a transaction from the cash ledger.
func (s *SQLiteStore) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return requireAffected(res, apperrors.ErrTransactionNotFound)
}

// GetTransactions retrieves cash transactions, oldest first unless
// filter.NewestFirst is set.
func (s *SQLiteStore) GetTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error) {
	query := "SELECT id, portfolio_id, transaction_type, amount, date, description FROM transactions WHERE 1=1"
	args := []interface{}{}

	if filter.PortfolioID != "" {
		query += " AND portfolio_id = ?"
		args = append(args, filter.PortfolioID)
	}
	if filter.Type != "" {
		query += " AND transaction_type = ?"
		args = append(args, string(filter.Type))
	}

	if filter.NewestFirst {
		query += " ORDER BY date DESC, id DESC"
	} else {
		query += " ORDER BY date ASC, id ASC"
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.PortfolioID, &t.Type, &t.Amount, &t.Date, &t.Description); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}

	return txns, rows.Err()
}

// ============================================================================
// Trade Ledger Methods
// ============================================================================

const tradeColumns = "id, user_id, symbol, trade_type, status, entry_date, exit_date, entry_price, exit_price, quantity, stop_loss, target, strategy_id, emotion, is_backtest, notes, created_at, updated_at"

// SaveTrade inserts a trade or replaces an existing one with the same ID.
func (s *SQLiteStore) SaveTrade(ctx context.Context, t *models.Trade) error {
	isBacktest := 0
	if t.IsBacktest {
		isBacktest = 1
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			symbol = excluded.symbol,
			trade_type = excluded.trade_type,
			status = excluded.status,
			entry_date = excluded.entry_date,
			exit_date = excluded.exit_date,
			entry_price = excluded.entry_price,
			exit_price = excluded.exit_price,
			quantity = excluded.quantity,
			stop_loss = excluded.stop_loss,
			target = excluded.target,
			strategy_id = excluded.strategy_id,
			emotion = excluded.emotion,
			is_backtest = excluded.is_backtest,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`, t.ID, t.UserID, t.Symbol, string(t.Type), string(t.Status), t.EntryDate.UTC(), nullTime(t.ExitDate),
		t.EntryPrice.String(), nullDecimal(t.ExitPrice), t.Quantity, nullDecimal(t.StopLoss), nullDecimal(t.Target),
		nullString(t.StrategyID), string(t.Emotion), isBacktest, t.Notes, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// GetTrade retrieves a single trade.
func (s *SQLiteStore) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+tradeColumns+" FROM trades WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to get trade: %w", err)
		}
		return nil, apperrors.ErrTradeNotFound
	}
	return scanTrade(rows)
}

// DeleteTrade removes a trade from the trade ledger.
func (s *SQLiteStore) DeleteTrade(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM trades WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete trade: %w", err)
	}
	return requireAffected(res, apperrors.ErrTradeNotFound)
}

// GetTrades retrieves trades, newest entry first.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := "SELECT " + tradeColumns + " FROM trades WHERE 1=1"
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.StrategyID != "" {
		query += " AND strategy_id = ?"
		args = append(args, filter.StrategyID)
	}
	if !filter.StartDate.IsZero() {
		query += " AND entry_date >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND entry_date <= ?"
		args = append(args, filter.EndDate.UTC())
	}

	query += " ORDER BY entry_date DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}

	return trades, rows.Err()
}

func scanTrade(rows *sql.Rows) (*models.Trade, error) {
	var t models.Trade
	var exitDate sql.NullTime
	var exitPrice, stopLoss, target decimal.NullDecimal
	var strategyID sql.NullString
	var isBacktest int

	if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Type, &t.Status, &t.EntryDate, &exitDate,
		&t.EntryPrice, &exitPrice, &t.Quantity, &stopLoss, &target, &strategyID, &t.Emotion,
		&isBacktest, &t.Notes, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan trade: %w", err)
	}

	if exitDate.Valid {
		d := exitDate.Time
		t.ExitDate = &d
	}
	t.ExitPrice = decimalPtr(exitPrice)
	t.StopLoss = decimalPtr(stopLoss)
	t.Target = decimalPtr(target)
	if strategyID.Valid {
		id := strategyID.String
		t.StrategyID = &id
	}
	t.IsBacktest = isBacktest == 1
	return &t, nil
}

// ============================================================================
// Strategy Methods
// ============================================================================

// SaveStrategy inserts or updates a strategy.
func (s *SQLiteStore) SaveStrategy(ctx context.Context, st *models.Strategy) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO strategies (id, user_id, name, description, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description
	`, st.ID, st.UserID, st.Name, st.Description, st.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save strategy: %w", err)
	}
	return nil
}

// GetStrategy retrieves a single strategy.
func (s *SQLiteStore) GetStrategy(ctx context.Context, id string) (*models.Strategy, error) {
	var st models.Strategy
	err := s.q.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, created_at FROM strategies WHERE id = ?
	`, id).Scan(&st.ID, &st.UserID, &st.Name, &st.Description, &st.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrStrategyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy: %w", err)
	}
	return &st, nil
}

// GetStrategies lists a user's strategies by name.
func (s *SQLiteStore) GetStrategies(ctx context.Context, userID string) ([]models.Strategy, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, name, description, created_at FROM strategies WHERE user_id = ? ORDER BY name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	var strategies []models.Strategy
	for rows.Next() {
		var st models.Strategy
		if err := rows.Scan(&st.ID, &st.UserID, &st.Name, &st.Description, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		strategies = append(strategies, st)
	}

	return strategies, rows.Err()
}

// DeleteStrategy removes a strategy. Trades that referenced it keep
// existing with no strategy.
func (s *SQLiteStore) DeleteStrategy(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM strategies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete strategy: %w", err)
	}
	return requireAffected(res, apperrors.ErrStrategyNotFound)
}

// ============================================================================
// Helpers
// ============================================================================

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
