package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"nepse-journal/internal/models"
)

var (
	lakh  = decimal.NewFromInt(100000)
	crore = decimal.NewFromInt(10000000)
)

// nprCurrency returns the NPR currency definition.
func nprCurrency() *money.Currency {
	// money.New never yields a nil currency.
	return money.New(0, models.Currency).Currency()
}

// FormatNPR formats an amount in Nepali rupees using the lakh/crore
// grouping, e.g. ₨12,34,567.89.
func FormatNPR(amount decimal.Decimal) string {
	cur := nprCurrency()

	negative := amount.IsNegative()
	str := amount.Abs().StringFixed(int32(cur.Fraction))
	intPart, decPart, _ := strings.Cut(str, ".")

	result := cur.Grapheme + formatNepaliNumber(intPart, cur.Thousand)
	if decPart != "" {
		result += cur.Decimal + decPart
	}
	if negative && !amount.Round(int32(cur.Fraction)).IsZero() {
		result = "-" + result
	}
	return result
}

// FormatMoney formats an amount with the currency's own template and
// western grouping, e.g. for machine-friendly exports.
func FormatMoney(amount decimal.Decimal) string {
	cur := nprCurrency()
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, models.Currency).Display()
}

// formatNepaliNumber formats an integer string in the South Asian numbering
// system: 1,00,00,000 (1 crore) vs western 10,000,000.
func formatNepaliNumber(s, sep string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	// First group of 3 from right (hundreds)
	result := s[n-3:]
	s = s[:n-3]

	// Then groups of 2 (thousands, lakhs, crores)
	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + sep + result
			s = s[:len(s)-2]
		} else {
			result = s + sep + result
			s = ""
		}
	}

	return result
}

// FormatPnL formats P&L with sign.
func FormatPnL(pnl decimal.Decimal) string {
	formatted := FormatNPR(pnl)
	if pnl.Round(2).IsPositive() {
		return "+" + formatted
	}
	return formatted
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value decimal.Decimal) string {
	sign := ""
	if value.Round(2).IsPositive() {
		sign = "+"
	}
	return sign + value.StringFixed(2) + "%"
}

// FormatCompact formats an amount in compact form (L/Cr).
func FormatCompact(amount decimal.Decimal) string {
	abs := amount.Abs()
	switch {
	case abs.GreaterThanOrEqual(crore):
		return amount.Div(crore).StringFixed(2) + " Cr"
	case abs.GreaterThanOrEqual(lakh):
		return amount.Div(lakh).StringFixed(2) + " L"
	}
	return FormatNPR(amount)
}

// FormatPrice formats a price with two decimal places.
func FormatPrice(price decimal.Decimal) string {
	return price.StringFixed(2)
}

// FormatOptionalPrice formats an optional price, "-" when unset.
func FormatOptionalPrice(price *decimal.Decimal) string {
	if price == nil {
		return "-"
	}
	return FormatPrice(*price)
}

// FormatQuantity formats a quantity with Nepali numbering.
func FormatQuantity(qty int64) string {
	if qty < 0 {
		return "-" + formatNepaliNumber(fmt.Sprintf("%d", -qty), ",")
	}
	return formatNepaliNumber(fmt.Sprintf("%d", qty), ",")
}

// FormatDate formats a date in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02-Jan-2006")
}

// FormatOptionalDate formats an optional date, "-" when unset.
func FormatOptionalDate(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return FormatDate(*t, loc)
}

// dateLayouts are the accepted --date formats.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate parses a user-supplied date in loc. Dates without a time of
// day fall at midnight.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD, YYYY-MM-DD HH:MM or RFC 3339", s)
}

// ParseDecimal parses a user-supplied amount or price. Grouping commas are
// ignored.
func ParseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q", field, s)
	}
	return d, nil
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
