package security

import (
	"context"
	"fmt"
	"sync"

	apperrors "nepse-journal/internal/errors"
)

// OperationType represents the type of operation.
type OperationType string

const (
	// Read operations
	OpRead OperationType = "READ"

	// Write operations (blocked in read-only mode)
	OpAddTransaction    OperationType = "ADD_TRANSACTION"
	OpDeleteTransaction OperationType = "DELETE_TRANSACTION"
	OpSaveTrade         OperationType = "SAVE_TRADE"
	OpDeleteTrade       OperationType = "DELETE_TRADE"
	OpSaveStrategy      OperationType = "SAVE_STRATEGY"
	OpDeleteStrategy    OperationType = "DELETE_STRATEGY"
	OpUpdateSettings    OperationType = "UPDATE_SETTINGS"
)

// ReadOnlyError represents an error when attempting a write operation in read-only mode.
type ReadOnlyError struct {
	Operation OperationType
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("operation %s blocked: read-only mode is enabled", e.Operation)
}

// Unwrap lets callers match the error with apperrors.ErrReadOnlyMode.
func (e *ReadOnlyError) Unwrap() error {
	return apperrors.ErrReadOnlyMode
}

// AccessController manages read-only mode and operation permissions.
type AccessController struct {
	readOnly    bool
	auditLogger *AuditLogger
	mu          sync.RWMutex
}

// NewAccessController creates a new access controller. auditLogger may be nil.
func NewAccessController(readOnly bool, auditLogger *AuditLogger) *AccessController {
	return &AccessController{
		readOnly:    readOnly,
		auditLogger: auditLogger,
	}
}

// IsReadOnly returns whether read-only mode is enabled.
func (ac *AccessController) IsReadOnly() bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.readOnly
}

// SetReadOnly sets the read-only mode.
func (ac *AccessController) SetReadOnly(readOnly bool) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.readOnly = readOnly
}

// CheckPermission checks if an operation is allowed.
func (ac *AccessController) CheckPermission(ctx context.Context, op OperationType) error {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	if !ac.readOnly || !isWriteOperation(op) {
		return nil
	}

	ac.auditLogger.LogReadOnlyViolation(ctx, string(op))
	return &ReadOnlyError{Operation: op}
}

// isWriteOperation returns true if the operation modifies state.
func isWriteOperation(op OperationType) bool {
	switch op {
	case OpAddTransaction, OpDeleteTransaction,
		OpSaveTrade, OpDeleteTrade,
		OpSaveStrategy, OpDeleteStrategy,
		OpUpdateSettings:
		return true
	default:
		return false
	}
}

// WriteOperations returns a list of all write operations.
func WriteOperations() []OperationType {
	return []OperationType{
		OpAddTransaction,
		OpDeleteTransaction,
		OpSaveTrade,
		OpDeleteTrade,
		OpSaveStrategy,
		OpDeleteStrategy,
		OpUpdateSettings,
	}
}

// OperationDescription returns a human-readable description of an operation.
func OperationDescription(op OperationType) string {
	switch op {
	case OpRead:
		return "Read data"
	case OpAddTransaction:
		return "Record deposit or withdrawal"
	case OpDeleteTransaction:
		return "Delete cash transaction"
	case OpSaveTrade:
		return "Save trade"
	case OpDeleteTrade:
		return "Delete trade"
	case OpSaveStrategy:
		return "Save strategy"
	case OpDeleteStrategy:
		return "Delete strategy"
	case OpUpdateSettings:
		return "Update portfolio settings"
	default:
		return string(op)
	}
}
