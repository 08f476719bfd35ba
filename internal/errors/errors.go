// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrPortfolioNotFound   = errors.New("portfolio not found")
	ErrTradeNotFound       = errors.New("trade not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrStrategyNotFound    = errors.New("strategy not found")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrDatabaseError       = errors.New("database error")
	ErrReadOnlyMode        = errors.New("operation blocked: read-only mode enabled")
	ErrInputValidation     = errors.New("input validation failed")
)

// ValidationError represents a validation error on a single input field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap lets callers match any validation failure with ErrInputValidation.
func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// LedgerError represents a failed mutation of a trade or cash ledger.
type LedgerError struct {
	Ledger string // "trade", "cash", "strategy", "portfolio"
	ID     string
	Op     string
	Err    error
}

func (e *LedgerError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s ledger %s [%s]: %v", e.Ledger, e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s ledger %s: %v", e.Ledger, e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// NewLedgerError creates a new LedgerError.
func NewLedgerError(ledger, op, id string, err error) *LedgerError {
	return &LedgerError{
		Ledger: ledger,
		ID:     id,
		Op:     op,
		Err:    err,
	}
}

// ReconcileError represents a failed reconciliation pass for one user.
type ReconcileError struct {
	UserID string
	Err    error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile portfolio of %s: %v", e.UserID, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// NewReconcileError creates a new ReconcileError.
func NewReconcileError(userID string, err error) *ReconcileError {
	return &ReconcileError{UserID: userID, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPortfolioNotFound) ||
		errors.Is(err, ErrTradeNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrStrategyNotFound)
}
