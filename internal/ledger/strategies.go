package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"

	apperrors "nepse-journal/internal/errors"
	"nepse-journal/internal/logging"
	"nepse-journal/internal/models"
	"nepse-journal/internal/security"
	"nepse-journal/internal/store"
)

// CreateStrategy adds a named strategy for the user.
func (s *Service) CreateStrategy(ctx context.Context, userID, name, description string) (*models.Strategy, error) {
	if err := s.validator.ValidateID("user_id", userID); err != nil {
		return nil, s.invalid(ctx, userID, err)
	}
	if err := s.validator.ValidateName("name", name); err != nil {
		return nil, s.invalid(ctx, userID, err)
	}
	if err := s.validator.ValidateText("description", description, security.MaxNotesLength); err != nil {
		return nil, s.invalid(ctx, userID, err)
	}

	st := &models.Strategy{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        strings.TrimSpace(name),
		Description: security.SanitizeText(description),
		CreatedAt:   s.now(),
	}

	err := s.mutate(ctx, security.OpSaveStrategy, func(tx store.DataStore) error {
		return tx.SaveStrategy(ctx, st)
	})

	s.auditEvent(ctx, security.AuditStrategyCreated, userID, st.ID, map[string]interface{}{"name": st.Name}, err)
	if err != nil {
		return nil, apperrors.NewLedgerError(LedgerStrategy, string(models.OpCreate), st.ID, err)
	}

	logging.LogMutation(logging.WithUser(s.logger, userID), LedgerStrategy, string(models.OpCreate), st.ID)
	return st, nil
}

// ListStrategies returns the user's strategies by name.
func (s *Service) ListStrategies(ctx context.Context, userID string) ([]models.Strategy, error) {
	return s.store.GetStrategies(ctx, userID)
}

// DeleteStrategy removes one of the user's strategies. Trades that used it
// are kept and lose their strategy. Strategies do not contribute to the
// balance, so no reconciliation follows.
func (s *Service) DeleteStrategy(ctx context.Context, userID, id string) error {
	err := s.mutate(ctx, security.OpDeleteStrategy, func(tx store.DataStore) error {
		st, err := tx.GetStrategy(ctx, id)
		if err != nil {
			return err
		}
		if st.UserID != userID {
			return apperrors.ErrStrategyNotFound
		}
		return tx.DeleteStrategy(ctx, id)
	})

	s.auditEvent(ctx, security.AuditStrategyDeleted, userID, id, nil, err)
	if err != nil {
		return apperrors.NewLedgerError(LedgerStrategy, string(models.OpDelete), id, err)
	}

	logging.LogMutation(logging.WithUser(s.logger, userID), LedgerStrategy, string(models.OpDelete), id)
	return nil
}
