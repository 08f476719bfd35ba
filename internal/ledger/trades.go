package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "nepse-journal/internal/errors"
	"nepse-journal/internal/logging"
	"nepse-journal/internal/models"
	"nepse-journal/internal/portfolio"
	"nepse-journal/internal/security"
	"nepse-journal/internal/store"
)

// TradeInput holds the journaled fields of a trade.
type TradeInput struct {
	Symbol     string             `json:"symbol"`
	Type       models.TradeType   `json:"type"`
	Status     models.TradeStatus `json:"status"`
	EntryDate  time.Time          `json:"entry_date"`
	EntryPrice decimal.Decimal    `json:"entry_price"`
	Quantity   int64              `json:"quantity"`
	ExitDate   *time.Time         `json:"exit_date,omitempty"`
	ExitPrice  *decimal.Decimal   `json:"exit_price,omitempty"`
	StopLoss   *decimal.Decimal   `json:"stop_loss,omitempty"`
	Target     *decimal.Decimal   `json:"target,omitempty"`
	StrategyID *string            `json:"strategy_id,omitempty"`
	Emotion    models.Emotion     `json:"emotion"`
	IsBacktest bool               `json:"is_backtest"`
	Notes      string             `json:"notes"`
}

// TradeResult is a saved trade together with the reconciliation it caused.
type TradeResult struct {
	Trade     *models.Trade    `json:"trade"`
	Reconcile portfolio.Result `json:"reconcile"`
}

// CreateTrade journals a new trade and reconciles the user's balance.
func (s *Service) CreateTrade(ctx context.Context, userID string, in TradeInput) (*TradeResult, error) {
	in = normalizeTrade(in)
	if err := s.validateTrade(userID, in); err != nil {
		return nil, s.invalid(ctx, userID, err)
	}

	now := s.now()
	trade := &models.Trade{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
	}
	applyTradeInput(trade, in, now)

	result := &TradeResult{Trade: trade}
	err := s.mutate(ctx, security.OpSaveTrade, func(tx store.DataStore) error {
		if err := s.checkStrategy(ctx, tx, userID, trade.StrategyID); err != nil {
			return err
		}
		if err := tx.SaveTrade(ctx, trade); err != nil {
			return err
		}
		result.Reconcile = s.reconcile(ctx, tx, userID, LedgerTrade, trade.ID, models.OpCreate)
		return nil
	})

	s.auditEvent(ctx, security.AuditTradeCreated, userID, trade.ID, tradeDetails(trade), err)
	if err != nil {
		return nil, apperrors.NewLedgerError(LedgerTrade, string(models.OpCreate), trade.ID, err)
	}

	logging.LogMutation(logging.WithUser(s.logger, userID), LedgerTrade, string(models.OpCreate), trade.ID)
	return result, nil
}

// UpdateTrade replaces the journaled fields of one of the user's trades and
// reconciles the balance. Closing a trade is an update that sets its status,
// exit price and exit date.
func (s *Service) UpdateTrade(ctx context.Context, userID, id string, in TradeInput) (*TradeResult, error) {
	in = normalizeTrade(in)
	if err := s.validateTrade(userID, in); err != nil {
		return nil, s.invalid(ctx, userID, err)
	}

	result := &TradeResult{}
	err := s.mutate(ctx, security.OpSaveTrade, func(tx store.DataStore) error {
		trade, err := ownedTrade(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		applyTradeInput(trade, in, s.now())
		if err := s.checkStrategy(ctx, tx, userID, trade.StrategyID); err != nil {
			return err
		}
		if err := tx.SaveTrade(ctx, trade); err != nil {
			return err
		}
		result.Trade = trade
		result.Reconcile = s.reconcile(ctx, tx, userID, LedgerTrade, trade.ID, models.OpUpdate)
		return nil
	})

	var details map[string]interface{}
	if result.Trade != nil {
		details = tradeDetails(result.Trade)
	}
	s.auditEvent(ctx, security.AuditTradeUpdated, userID, id, details, err)
	if err != nil {
		return nil, apperrors.NewLedgerError(LedgerTrade, string(models.OpUpdate), id, err)
	}

	logging.LogMutation(logging.WithUser(s.logger, userID), LedgerTrade, string(models.OpUpdate), id)
	return result, nil
}

// DeleteTrade removes one of the user's trades and reconciles the balance.
func (s *Service) DeleteTrade(ctx context.Context, userID, id string) (portfolio.Result, error) {
	var res portfolio.Result
	err := s.mutate(ctx, security.OpDeleteTrade, func(tx store.DataStore) error {
		if _, err := ownedTrade(ctx, tx, userID, id); err != nil {
			return err
		}
		if err := tx.DeleteTrade(ctx, id); err != nil {
			return err
		}
		res = s.reconcile(ctx, tx, userID, LedgerTrade, id, models.OpDelete)
		return nil
	})

	s.auditEvent(ctx, security.AuditTradeDeleted, userID, id, nil, err)
	if err != nil {
		return portfolio.Result{}, apperrors.NewLedgerError(LedgerTrade, string(models.OpDelete), id, err)
	}

	logging.LogMutation(logging.WithUser(s.logger, userID), LedgerTrade, string(models.OpDelete), id)
	return res, nil
}

// GetTrade returns one of the user's trades.
func (s *Service) GetTrade(ctx context.Context, userID, id string) (*models.Trade, error) {
	return ownedTrade(ctx, s.store, userID, id)
}

// ListTrades returns the user's trades, newest entry first.
func (s *Service) ListTrades(ctx context.Context, userID string, filter store.TradeFilter) ([]models.Trade, error) {
	filter.UserID = userID
	if filter.Symbol != "" {
		filter.Symbol = security.SanitizeSymbol(filter.Symbol)
	}
	return s.store.GetTrades(ctx, filter)
}

// ownedTrade loads a trade and hides trades of other users.
func ownedTrade(ctx context.Context, ds store.DataStore, userID, id string) (*models.Trade, error) {
	trade, err := ds.GetTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	if trade.UserID != userID {
		return nil, apperrors.ErrTradeNotFound
	}
	return trade, nil
}

// checkStrategy requires a referenced strategy to belong to the same user.
func (s *Service) checkStrategy(ctx context.Context, ds store.DataStore, userID string, strategyID *string) error {
	if strategyID == nil {
		return nil
	}
	st, err := ds.GetStrategy(ctx, *strategyID)
	if err != nil {
		return err
	}
	if st.UserID != userID {
		return apperrors.ErrStrategyNotFound
	}
	return nil
}

func normalizeTrade(in TradeInput) TradeInput {
	in.Symbol = security.SanitizeSymbol(in.Symbol)
	in.Type = models.TradeType(strings.ToUpper(string(in.Type)))
	in.Status = models.TradeStatus(strings.ToUpper(string(in.Status)))
	if in.Status == "" {
		in.Status = models.StatusOpen
	}
	in.Emotion = models.Emotion(strings.ToUpper(string(in.Emotion)))
	if in.Emotion == "" {
		in.Emotion = models.EmotionNeutral
	}
	if in.StrategyID != nil && strings.TrimSpace(*in.StrategyID) == "" {
		in.StrategyID = nil
	}
	in.Notes = security.SanitizeText(in.Notes)
	return in
}

func (s *Service) validateTrade(userID string, in TradeInput) error {
	if err := s.validator.ValidateID("user_id", userID); err != nil {
		return err
	}
	if err := s.validator.ValidateSymbol(in.Symbol); err != nil {
		return err
	}
	if !in.Type.Valid() {
		return apperrors.NewValidationError("type", in.Type, "must be BUY or SELL")
	}
	if !in.Status.Valid() {
		return apperrors.NewValidationError("status", in.Status, "must be OPEN or CLOSED")
	}
	if !in.Emotion.Valid() {
		return apperrors.NewValidationError("emotion", in.Emotion, "unknown emotion")
	}
	if in.EntryDate.IsZero() {
		return apperrors.NewValidationError("entry_date", "", "entry date is required")
	}
	if err := s.validator.ValidateQuantity(in.Quantity); err != nil {
		return err
	}
	if err := s.validator.ValidatePrice("entry_price", in.EntryPrice); err != nil {
		return err
	}
	optional := []struct {
		field string
		price *decimal.Decimal
	}{
		{"exit_price", in.ExitPrice},
		{"stop_loss", in.StopLoss},
		{"target", in.Target},
	}
	for _, o := range optional {
		if o.price == nil {
			continue
		}
		if err := s.validator.ValidatePrice(o.field, *o.price); err != nil {
			return err
		}
	}
	if in.ExitDate != nil && in.ExitDate.Before(in.EntryDate) {
		return apperrors.NewValidationError("exit_date", in.ExitDate.Format(time.RFC3339), "exit date is before entry date")
	}
	if in.StrategyID != nil {
		if err := s.validator.ValidateID("strategy_id", *in.StrategyID); err != nil {
			return err
		}
	}
	return s.validator.ValidateText("notes", in.Notes, security.MaxNotesLength)
}

func applyTradeInput(t *models.Trade, in TradeInput, now time.Time) {
	t.Symbol = in.Symbol
	t.Type = in.Type
	t.Status = in.Status
	t.EntryDate = in.EntryDate
	t.EntryPrice = in.EntryPrice
	t.Quantity = in.Quantity
	t.ExitDate = in.ExitDate
	t.ExitPrice = in.ExitPrice
	t.StopLoss = in.StopLoss
	t.Target = in.Target
	t.StrategyID = in.StrategyID
	t.Emotion = in.Emotion
	t.IsBacktest = in.IsBacktest
	t.Notes = in.Notes
	t.UpdatedAt = now
}

func tradeDetails(t *models.Trade) map[string]interface{} {
	details := map[string]interface{}{
		"symbol":   t.Symbol,
		"type":     string(t.Type),
		"status":   string(t.Status),
		"quantity": t.Quantity,
	}
	if pnl, ok := t.PnL(); ok {
		details["pnl"] = pnl.String()
	}
	return details
}
