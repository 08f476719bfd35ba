package cli

import (
	"regexp"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// For any amount in paisa, FormatNPR should:
// 1. Start with the rupee grapheme (or -grapheme for negative)
// 2. Have exactly 2 decimal places
// 3. Use Nepali grouping (3 digits, then groups of 2)
// 4. Preserve the value when parsed back
func TestFormatNPRProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	cur := nprCurrency()
	grouping := regexp.MustCompile(`^(\d{1,2}` + regexp.QuoteMeta(cur.Thousand) + `)*\d{1,3}$`)

	properties.Property("FormatNPR produces Nepali grouping", prop.ForAll(
		func(paisa int64) bool {
			amount := decimal.New(paisa, -2)
			formatted := FormatNPR(amount)

			prefix := cur.Grapheme
			if paisa < 0 {
				prefix = "-" + cur.Grapheme
			}
			if !strings.HasPrefix(formatted, prefix) {
				t.Logf("expected %q prefix for %s, got %s", prefix, amount, formatted)
				return false
			}

			body := strings.TrimPrefix(formatted, prefix)
			intPart, decPart, ok := strings.Cut(body, cur.Decimal)
			if !ok || len(decPart) != 2 {
				t.Logf("expected 2 decimal places for %s, got %s", amount, formatted)
				return false
			}
			if !grouping.MatchString(intPart) {
				t.Logf("invalid grouping for %s: %s", amount, formatted)
				return false
			}
			return true
		},
		gen.Int64Range(-1e14, 1e14),
	))

	properties.Property("FormatNPR round trips through ParseDecimal", prop.ForAll(
		func(paisa int64) bool {
			amount := decimal.New(paisa, -2)
			plain := strings.Replace(FormatNPR(amount), cur.Grapheme, "", 1)
			parsed, err := ParseDecimal("amount", plain)
			if err != nil {
				t.Logf("parse %q: %v", plain, err)
				return false
			}
			return parsed.Equal(amount)
		},
		gen.Int64Range(-1e14, 1e14),
	))

	properties.Property("FormatPnL signs positive amounts", prop.ForAll(
		func(paisa int64) bool {
			formatted := FormatPnL(decimal.New(paisa, -2))
			switch {
			case paisa > 0:
				return strings.HasPrefix(formatted, "+"+cur.Grapheme)
			case paisa < 0:
				return strings.HasPrefix(formatted, "-"+cur.Grapheme)
			}
			return strings.HasPrefix(formatted, cur.Grapheme)
		},
		gen.Int64Range(-1e12, 1e12),
	))

	properties.Property("FormatCompact picks the unit by magnitude", prop.ForAll(
		func(rupees int64) bool {
			formatted := FormatCompact(decimal.NewFromInt(rupees))
			abs := rupees
			if abs < 0 {
				abs = -abs
			}
			switch {
			case abs >= 10000000:
				return strings.HasSuffix(formatted, " Cr")
			case abs >= 100000:
				return strings.HasSuffix(formatted, " L")
			}
			return strings.Contains(formatted, cur.Grapheme)
		},
		gen.Int64Range(-1e11, 1e11),
	))

	properties.TestingRun(t)
}

func TestFormatNepaliNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"999", "999"},
		{"1000", "1,000"},
		{"100000", "1,00,000"},
		{"1234567", "12,34,567"},
		{"10000000", "1,00,00,000"},
	}
	for _, tt := range tests {
		if got := formatNepaliNumber(tt.in, ","); got != tt.want {
			t.Errorf("formatNepaliNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
