package portfolio

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "nepse-journal/internal/errors"
	"nepse-journal/internal/logging"
	"nepse-journal/internal/models"
	"nepse-journal/internal/store"
)

// DefaultRecentTransactions is the number of transactions on the dashboard.
const DefaultRecentTransactions = 10

// Service exposes reconciled balances and balance history to callers.
type Service struct {
	store      store.DataStore
	reconciler *Reconciler
	logger     zerolog.Logger
	location   *time.Location
	recent     int
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLocation sets the time zone that defines calendar days in the history.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithRecentTransactions sets how many transactions the dashboard lists.
func WithRecentTransactions(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recent = n
		}
	}
}

// WithClock replaces the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.reconciler.SetClock(now)
	}
}

// NewService creates a new portfolio Service.
func NewService(ds store.DataStore, reconciler *Reconciler, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      ds,
		reconciler: reconciler,
		logger:     logging.WithComponent(logger, "portfolio"),
		location:   time.UTC,
		recent:     DefaultRecentTransactions,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconciler returns the reconciler used by the service.
func (s *Service) Reconciler() *Reconciler {
	return s.reconciler
}

// Location returns the time zone used for calendar days.
func (s *Service) Location() *time.Location {
	return s.location
}

// GetOrCreate returns the user's portfolio, creating an empty one with zero
// initial capital on first access, and reconciles it before returning.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (*models.Portfolio, error) {
	var p *models.Portfolio
	err := s.store.WithTx(ctx, func(tx store.DataStore) error {
		var err error
		p, err = s.getOrCreate(ctx, tx, userID)
		if err != nil {
			return err
		}
		_, err = s.reconciler.ReconcilePortfolio(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) getOrCreate(ctx context.Context, ds store.DataStore, userID string) (*models.Portfolio, error) {
	p, err := ds.GetPortfolio(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !apperrors.Is(err, apperrors.ErrPortfolioNotFound) {
		return nil, err
	}

	p = &models.Portfolio{
		ID:             uuid.NewString(),
		UserID:         userID,
		Name:           models.DefaultPortfolioName,
		InitialCapital: decimal.Zero,
		CurrentBalance: decimal.Zero,
		CreatedAt:      s.now(),
	}
	if err := ds.CreatePortfolio(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Str("portfolio_id", p.ID).Msg("Created portfolio on first access")
	return p, nil
}

// GetBalance returns the user's reconciled balance, creating the portfolio
// if it does not exist yet.
func (s *Service) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	p, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.CurrentBalance, nil
}

// GetBalanceHistory returns the user's balance series. It is recomputed on
// every call and never stored.
func (s *Service) GetBalanceHistory(ctx context.Context, userID string) ([]BalancePoint, error) {
	ledger, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Project(ledger.Portfolio.InitialCapital, ledger.Transactions, ledger.ClosedTrades, s.location), nil
}

// snapshot reconciles the user's portfolio and reads its ledger in one
// transaction, so the balance and the ledger agree.
func (s *Service) snapshot(ctx context.Context, userID string) (*Ledger, error) {
	var ledger *Ledger
	err := s.store.WithTx(ctx, func(tx store.DataStore) error {
		p, err := s.getOrCreate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if _, err := s.reconciler.ReconcilePortfolio(ctx, tx, p); err != nil {
			return err
		}
		ledger, err = LoadLedger(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

// RecalculateAll reconciles every portfolio. See Reconciler.RecalculateAll.
func (s *Service) RecalculateAll(ctx context.Context) (RecalcReport, error) {
	return s.reconciler.RecalculateAll(ctx, s.store)
}
