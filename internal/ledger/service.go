// Package ledger implements the write side of the journal: the cash ledger,
// the trade ledger, strategies, and portfolio settings. Every mutation runs
// in one database transaction together with the reconciliation of the
// owner's portfolio balance.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "nepse-journal/internal/errors"
	"nepse-journal/internal/logging"
	"nepse-journal/internal/models"
	"nepse-journal/internal/portfolio"
	"nepse-journal/internal/security"
	"nepse-journal/internal/store"
	"nepse-journal/pkg/utils"
)

// Ledger names used in logs, audit events and errors.
const (
	LedgerCash      = "cash"
	LedgerTrade     = "trade"
	LedgerStrategy  = "strategy"
	LedgerPortfolio = "portfolio"
)

// Service records ledger mutations and keeps balances reconciled.
type Service struct {
	store      store.DataStore
	reconciler *portfolio.Reconciler
	validator  *security.InputValidator
	access     *security.AccessController
	audit      *security.AuditLogger
	logger     zerolog.Logger
	retry      utils.RetryConfig
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithAuditLogger records every mutation to the audit trail.
func WithAuditLogger(al *security.AuditLogger) Option {
	return func(s *Service) {
		s.audit = al
	}
}

// WithAccessController sets the controller that enforces read-only mode.
func WithAccessController(ac *security.AccessController) Option {
	return func(s *Service) {
		if ac != nil {
			s.access = ac
		}
	}
}

// WithValidator replaces the input validator.
func WithValidator(v *security.InputValidator) Option {
	return func(s *Service) {
		if v != nil {
			s.validator = v
		}
	}
}

// WithRetry sets how many times a write is retried while the database is busy.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(s *Service) {
		s.retry.MaxAttempts = maxAttempts
		if initialDelay > 0 {
			s.retry.InitialDelay = initialDelay
		}
	}
}

// WithClock replaces the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new ledger Service. Without options it validates
// strictly, allows writes and keeps no audit trail.
func NewService(ds store.DataStore, reconciler *portfolio.Reconciler, logger zerolog.Logger, opts ...Option) *Service {
	retry := utils.DefaultRetryConfig()
	retry.Retryable = store.IsBusy

	s := &Service{
		store:      ds,
		reconciler: reconciler,
		validator:  security.NewInputValidator(true),
		access:     security.NewAccessController(false, nil),
		logger:     logging.WithComponent(logger, "ledger"),
		retry:      retry,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mutate runs fn in a write transaction, retrying while SQLite is busy.
func (s *Service) mutate(ctx context.Context, op security.OperationType, fn func(tx store.DataStore) error) error {
	if err := s.access.CheckPermission(ctx, op); err != nil {
		return err
	}
	return utils.Retry(ctx, s.retry, func() error {
		return s.store.WithTx(ctx, fn)
	})
}

// reconcile reconciles the owner's balance inside the mutation's
// transaction. It never fails the mutation.
func (s *Service) reconcile(ctx context.Context, tx store.DataStore, userID, ledger, id string, op models.MutationOp) portfolio.Result {
	return s.reconciler.OnMutation(ctx, tx, portfolio.Mutation{
		UserID: userID,
		Ledger: ledger,
		ID:     id,
		Op:     op,
	})
}

// invalid records a validation failure in the audit trail and returns err.
func (s *Service) invalid(ctx context.Context, userID string, err error) error {
	var verr *apperrors.ValidationError
	if apperrors.As(err, &verr) {
		s.audit.LogInputValidation(ctx, userID, verr.Field, verr.Message)
	}
	return err
}

func (s *Service) auditEvent(ctx context.Context, eventType security.AuditEventType, userID, recordID string, details map[string]interface{}, err error) {
	if auditErr := s.audit.LogLedgerEvent(ctx, eventType, userID, recordID, details, err); auditErr != nil {
		s.logger.Warn().Err(auditErr).Str("event_type", string(eventType)).Msg("Failed to write audit event")
	}
}

// ============================================================================
// Cash Ledger
// ============================================================================

// TransactionInput describes a new deposit or withdrawal.
type TransactionInput struct {
	Type        models.TransactionType `json:"type"`
	Amount      decimal.Decimal        `json:"amount"`
	Date        time.Time              `json:"date"`
	Description string                 `json:"description"`
}

// AddTransaction appends a deposit or withdrawal to the user's cash ledger
// and reconciles the balance. The portfolio must already exist.
func (s *Service) AddTransaction(ctx context.Context, userID string, in TransactionInput) (*models.Transaction, portfolio.Result, error) {
	if err := s.validateTransaction(userID, in); err != nil {
		return nil, portfolio.Result{}, s.invalid(ctx, userID, err)
	}

	txn := &models.Transaction{
		ID:          uuid.NewString(),
		Type:        in.Type,
		Amount:      in.Amount,
		Date:        in.Date,
		Description: security.SanitizeText(in.Description),
	}
	if txn.Date.IsZero() {
		txn.Date = s.now()
	}

	var res portfolio.Result
	err := s.mutate(ctx, security.OpAddTransaction, func(tx store.DataStore) error {
		p, err := tx.GetPortfolio(ctx, userID)
		if err != nil {
			return err
		}
		txn.PortfolioID = p.ID
		if err := tx.AddTransaction(ctx, txn); err != nil {
			return err
		}
		res = s.reconcile(ctx, tx, userID, LedgerCash, txn.ID, models.OpCreate)
		return nil
	})

	eventType := security.AuditDeposit
	if in.Type == models.Withdrawal {
		eventType = security.AuditWithdrawal
	}
	s.auditEvent(ctx, eventType, userID, txn.ID, map[string]interface{}{
		"amount": in.Amount.String(),
	}, err)

	if err != nil {
		return nil, portfolio.Result{}, apperrors.NewLedgerError(LedgerCash, string(models.OpCreate), txn.ID, err)
	}

	logging.LogMutation(logging.WithUser(s.logger, userID), LedgerCash, string(models.OpCreate), txn.ID)
	return txn, res, nil
}

func (s *Service) validateTransaction(userID string, in TransactionInput) error {
	if err := s.validator.ValidateID("user_id", userID); err != nil {
		return err
	}
	if !in.Type.Valid() {
		return apperrors.NewValidationError("type", in.Type, "must be DEPOSIT or WITHDRAWAL")
	}
	if err := s.validator.ValidateAmount(in.Amount); err != nil {
		return err
	}
	return s.validator.ValidateText("description", in.Description, 255)
}

// DeleteTransaction removes a transaction from the user's cash ledger and
// reconciles the balance.
func (s *Service) DeleteTransaction(ctx context.Context, userID, id string) (portfolio.Result, error) {
	var res portfolio.Result
	err := s.mutate(ctx, security.OpDeleteTransaction, func(tx store.DataStore) error {
		txn, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		p, err := tx.GetPortfolio(ctx, userID)
		if err != nil {
			return err
		}
		if txn.PortfolioID != p.ID {
			return apperrors.ErrTransactionNotFound
		}
		if err := tx.DeleteTransaction(ctx, id); err != nil {
			return err
		}
		res = s.reconcile(ctx, tx, userID, LedgerCash, id, models.OpDelete)
		return nil
	})

	s.auditEvent(ctx, security.AuditTransactionDeleted, userID, id, nil, err)
	if err != nil {
		return portfolio.Result{}, apperrors.NewLedgerError(LedgerCash, string(models.OpDelete), id, err)
	}

	logging.LogMutation(logging.WithUser(s.logger, userID), LedgerCash, string(models.OpDelete), id)
	return res, nil
}

// ListTransactions returns the user's cash ledger, newest first. A limit of
// zero returns every transaction.
func (s *Service) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	p, err := s.store.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.GetTransactions(ctx, store.TransactionFilter{
		PortfolioID: p.ID,
		NewestFirst: true,
		Limit:       limit,
	})
}

// ============================================================================
// Portfolio Settings
// ============================================================================

// SettingsInput holds the user-editable portfolio fields. Nil fields are
// left unchanged.
type SettingsInput struct {
	Name           *string          `json:"name,omitempty"`
	InitialCapital *decimal.Decimal `json:"initial_capital,omitempty"`
}

// UpdateSettings changes the portfolio's name or initial capital and
// reconciles the balance. The portfolio is created if it does not exist.
func (s *Service) UpdateSettings(ctx context.Context, userID string, in SettingsInput) (*models.Portfolio, error) {
	if err := s.validateSettings(userID, in); err != nil {
		return nil, s.invalid(ctx, userID, err)
	}

	var p *models.Portfolio
	err := s.mutate(ctx, security.OpUpdateSettings, func(tx store.DataStore) error {
		var err error
		p, err = tx.GetPortfolio(ctx, userID)
		if apperrors.Is(err, apperrors.ErrPortfolioNotFound) {
			p = &models.Portfolio{
				ID:        uuid.NewString(),
				UserID:    userID,
				Name:      models.DefaultPortfolioName,
				CreatedAt: s.now(),
			}
			err = tx.CreatePortfolio(ctx, p)
		}
		if err != nil {
			return err
		}

		if in.Name != nil {
			p.Name = strings.TrimSpace(*in.Name)
		}
		if in.InitialCapital != nil {
			p.InitialCapital = *in.InitialCapital
		}
		if err := tx.UpdatePortfolioSettings(ctx, p); err != nil {
			return err
		}

		s.reconcile(ctx, tx, userID, LedgerPortfolio, p.ID, models.OpUpdate)
		// The reconciler writes the balance; read back what it stored.
		p, err = tx.GetPortfolio(ctx, userID)
		return err
	})

	details := map[string]interface{}{}
	if in.Name != nil {
		details["name"] = *in.Name
	}
	if in.InitialCapital != nil {
		details["initial_capital"] = in.InitialCapital.String()
	}
	recordID := ""
	if p != nil {
		recordID = p.ID
	}
	s.auditEvent(ctx, security.AuditSettingsChanged, userID, recordID, details, err)

	if err != nil {
		return nil, apperrors.NewLedgerError(LedgerPortfolio, string(models.OpUpdate), recordID, err)
	}

	logging.LogMutation(logging.WithUser(s.logger, userID), LedgerPortfolio, string(models.OpUpdate), p.ID)
	return p, nil
}

func (s *Service) validateSettings(userID string, in SettingsInput) error {
	if err := s.validator.ValidateID("user_id", userID); err != nil {
		return err
	}
	if in.Name != nil {
		if err := s.validator.ValidateName("name", *in.Name); err != nil {
			return err
		}
	}
	if in.InitialCapital != nil {
		if err := s.validator.ValidateCapital(*in.InitialCapital); err != nil {
			return err
		}
	}
	return nil
}
