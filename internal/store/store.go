// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"nepse-journal/internal/models"
)

// DataStore defines the interface for data persistence.
//
// Lookups of a single record return one of the not-found sentinels from
// internal/errors when the record does not exist.
type DataStore interface {
	// Portfolios
	GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error)
	GetPortfolioByID(ctx context.Context, id string) (*models.Portfolio, error)
	CreatePortfolio(ctx context.Context, portfolio *models.Portfolio) error
	UpdatePortfolioSettings(ctx context.Context, portfolio *models.Portfolio) error
	SaveBalance(ctx context.Context, portfolioID string, balance decimal.Decimal, reconciledAt time.Time) error
	ListPortfolios(ctx context.Context) ([]models.Portfolio, error)

	// Cash ledger
	AddTransaction(ctx context.Context, txn *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error)

	// Trade ledger
	SaveTrade(ctx context.Context, trade *models.Trade) error
	GetTrade(ctx context.Context, id string) (*models.Trade, error)
	DeleteTrade(ctx context.Context, id string) error
	GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)

	// Strategies
	SaveStrategy(ctx context.Context, strategy *models.Strategy) error
	GetStrategy(ctx context.Context, id string) (*models.Strategy, error)
	GetStrategies(ctx context.Context, userID string) ([]models.Strategy, error)
	DeleteStrategy(ctx context.Context, id string) error

	// Units of work

	// WithTx runs fn against a store bound to a single write transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	// Calling WithTx on a store that is already bound reuses the transaction.
	WithTx(ctx context.Context, fn func(tx DataStore) error) error
	// Savepoint runs fn inside a nested savepoint of the bound transaction.
	// An error from fn rolls back only the work done inside the savepoint.
	Savepoint(ctx context.Context, name string, fn func() error) error

	// Lifecycle
	Close() error
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	UserID     string
	Symbol     string
	Status     models.TradeStatus
	StrategyID string
	StartDate  time.Time
	EndDate    time.Time
	Limit      int
}

// TransactionFilter represents filters for querying cash transactions.
type TransactionFilter struct {
	PortfolioID string
	Type        models.TransactionType
	NewestFirst bool
	Limit       int
}
