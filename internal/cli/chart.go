package cli

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Chart dimensions
const (
	chartWidth  = 40
	chartHeight = 8
)

// drawCurve plots values as a small terminal chart labelled in lakhs.
func drawCurve(output *Output, values []decimal.Decimal) {
	if len(values) < 2 {
		output.Dim("  Not enough data for a chart")
		return
	}

	// Find min/max for scaling
	minValue, maxValue := values[0], values[0]
	for _, v := range values {
		minValue = decimal.Min(minValue, v)
		maxValue = decimal.Max(maxValue, v)
	}

	// Add some padding
	padding := maxValue.Sub(minValue).Mul(decimal.NewFromFloat(0.1))
	if padding.IsZero() {
		padding = maxValue.Abs().Mul(decimal.NewFromFloat(0.05))
	}
	if padding.IsZero() {
		padding = decimal.NewFromInt(1)
	}
	minValue = minValue.Sub(padding)
	maxValue = maxValue.Add(padding)
	span := maxValue.Sub(minValue)

	chart := make([][]rune, chartHeight)
	for i := range chart {
		chart[i] = []rune(strings.Repeat(" ", chartWidth))
	}

	for i, v := range values {
		x := i * (chartWidth - 1) / (len(values) - 1)
		y := int(v.Sub(minValue).Div(span).Mul(decimal.NewFromInt(chartHeight - 1)).Round(0).IntPart())
		if y >= 0 && y < chartHeight {
			chart[chartHeight-1-y][x] = '█'
		}
	}

	for i := 0; i < chartHeight; i++ {
		label := strings.Repeat(" ", 10)
		switch i {
		case 0:
			label = PadLeft(FormatCompact(maxValue), 10)
		case chartHeight - 1:
			label = PadLeft(FormatCompact(minValue), 10)
		}
		output.Printf("  %s │%s\n", label, strings.TrimRight(string(chart[i]), " "))
	}
	output.Printf("  %s └%s\n", strings.Repeat(" ", 10), strings.Repeat("─", chartWidth))
}

// PadLeft pads a string to the left.
func PadLeft(s string, length int) string {
	if w := displayWidth(s); w < length {
		return strings.Repeat(" ", length-w) + s
	}
	return s
}
