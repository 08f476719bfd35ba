// Package security provides input validation, audit logging, and read-only
// controls for ledger writes.
package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	apperrors "nepse-journal/internal/errors"
)

// Validation patterns
var (
	// Symbol pattern: uppercase letters, numbers, and limited special chars
	symbolPattern = regexp.MustCompile(`^[A-Z0-9&-]{1,20}$`)

	// Record and user ID pattern
	idPattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,64}$`)

	// Strategy and portfolio names: alphanumeric with spaces and light punctuation
	namePattern = regexp.MustCompile(`^[A-Za-z0-9_ ()&.,'-]{1,60}$`)

	// SQL injection patterns
	sqlInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(union\s+select|select\s+\*|drop\s+table|insert\s+into|delete\s+from|update\s+.*\s+set)`),
		regexp.MustCompile(`(?i)(--|;|\\x00)`),
		regexp.MustCompile(`(?i)(or\s+1\s*=\s*1|and\s+1\s*=\s*1)`),
	}
)

// Limits applied to journal input.
const (
	MaxQuantity    = 10000000
	MaxNotesLength = 5000
)

var maxAmount = decimal.NewFromInt(1000000000000) // 1 kharab

// InputValidator provides input validation functionality.
type InputValidator struct {
	strictMode bool
}

// NewInputValidator creates a new input validator. In strict mode cash
// amounts must be positive and free text is screened for injection.
func NewInputValidator(strictMode bool) *InputValidator {
	return &InputValidator{strictMode: strictMode}
}

// ValidateSymbol validates a NEPSE stock symbol.
func (v *InputValidator) ValidateSymbol(symbol string) error {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	if symbol == "" {
		return apperrors.NewValidationError("symbol", symbol, "symbol cannot be empty")
	}

	if len(symbol) > 20 {
		return apperrors.NewValidationError("symbol", symbol, "symbol too long (max 20 characters)")
	}

	if !symbolPattern.MatchString(symbol) {
		return apperrors.NewValidationError("symbol", symbol, "invalid symbol format")
	}

	return nil
}

// ValidateID validates a user or record identifier.
func (v *InputValidator) ValidateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.NewValidationError(field, id, "cannot be empty")
	}

	if !idPattern.MatchString(id) {
		return apperrors.NewValidationError(field, id, "invalid identifier format")
	}

	return nil
}

// ValidateName validates a strategy or portfolio name.
func (v *InputValidator) ValidateName(field, name string) error {
	name = strings.TrimSpace(name)

	if name == "" {
		return apperrors.NewValidationError(field, name, "name cannot be empty")
	}

	if !namePattern.MatchString(name) {
		return apperrors.NewValidationError(field, name, "invalid name format")
	}

	if v.containsInjection(name) {
		return apperrors.NewValidationError(field, name, "invalid characters detected")
	}

	return nil
}

// ValidateQuantity validates a trade quantity.
func (v *InputValidator) ValidateQuantity(qty int64) error {
	if qty <= 0 {
		return apperrors.NewValidationError("quantity", qty, "quantity must be positive")
	}

	if qty > MaxQuantity {
		return apperrors.NewValidationError("quantity", qty, "quantity exceeds maximum allowed")
	}

	return nil
}

// ValidatePrice validates a price value.
func (v *InputValidator) ValidatePrice(field string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return apperrors.NewValidationError(field, price.String(), "price must be positive")
	}

	if price.GreaterThan(maxAmount) {
		return apperrors.NewValidationError(field, price.String(), "price exceeds maximum allowed")
	}

	return nil
}

// ValidateAmount validates a deposit or withdrawal amount. Only strict
// mode requires the amount to be positive.
func (v *InputValidator) ValidateAmount(amount decimal.Decimal) error {
	if v.strictMode && !amount.IsPositive() {
		return apperrors.NewValidationError("amount", amount.String(), "amount must be positive")
	}

	if amount.Abs().GreaterThan(maxAmount) {
		return apperrors.NewValidationError("amount", amount.String(), "amount exceeds maximum allowed")
	}

	return nil
}

// ValidateCapital validates a portfolio's initial capital.
func (v *InputValidator) ValidateCapital(capital decimal.Decimal) error {
	if capital.IsNegative() {
		return apperrors.NewValidationError("initial_capital", capital.String(), "initial capital cannot be negative")
	}

	if capital.GreaterThan(maxAmount) {
		return apperrors.NewValidationError("initial_capital", capital.String(), "initial capital exceeds maximum allowed")
	}

	return nil
}

// ValidateText validates free-form text input.
func (v *InputValidator) ValidateText(field, text string, maxLen int) error {
	if len(text) > maxLen {
		preview := text
		if len(preview) > 50 {
			preview = preview[:50] + "..."
		}
		return apperrors.NewValidationError(field, preview, fmt.Sprintf("text too long (max %d characters)", maxLen))
	}

	if v.strictMode && strings.ContainsRune(text, 0) {
		return apperrors.NewValidationError(field, "", "null bytes are not allowed")
	}

	return nil
}

// containsInjection checks for SQL injection patterns.
func (v *InputValidator) containsInjection(input string) bool {
	for _, pattern := range sqlInjectionPatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}

// SanitizeSymbol sanitizes a symbol input.
func SanitizeSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	// Remove any non-alphanumeric characters except & and -
	var result strings.Builder
	for _, r := range symbol {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&' || r == '-' {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// SanitizeText removes control characters other than newlines and tabs.
func SanitizeText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r == '\n' || r == '\t' || (r >= 32 && r != 127) {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
