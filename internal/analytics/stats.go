// Package analytics computes trading performance statistics from the trade
// ledger.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"nepse-journal/internal/models"
)

// MonthsOfHistory is the window of the monthly P&L breakdown.
const MonthsOfHistory = 12

var hundred = decimal.NewFromInt(100)

// CurvePoint is the cumulative realized P&L after one closed trade.
type CurvePoint struct {
	Date  string          `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// MonthlyPnL is the realized P&L of one calendar month.
type MonthlyPnL struct {
	Month string          `json:"month"` // YYYY-MM
	Label string          `json:"label"` // Jan
	PnL   decimal.Decimal `json:"pnl"`
}

// Stats summarizes a user's trades.
type Stats struct {
	TotalTrades     int             `json:"total_trades"`
	OpenTrades      int             `json:"open_trades"`
	ClosedTrades    int             `json:"closed_trades"`
	WinningTrades   int             `json:"winning_trades"`
	LosingTrades    int             `json:"losing_trades"`
	BreakevenTrades int             `json:"breakeven_trades"`
	WinRate         decimal.Decimal `json:"win_rate"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	GrossProfit     decimal.Decimal `json:"gross_profit"`
	GrossLoss       decimal.Decimal `json:"gross_loss"`
	// ProfitFactor is gross profit over gross loss. It is unbounded when
	// there are no losses; InfiniteProfitFactor is set and ProfitFactor is
	// zero in that case.
	ProfitFactor         decimal.Decimal `json:"profit_factor"`
	InfiniteProfitFactor bool            `json:"infinite_profit_factor"`
	AverageWin           decimal.Decimal `json:"average_win"`
	AverageLoss          decimal.Decimal `json:"average_loss"`
	Expectancy           decimal.Decimal `json:"expectancy"`
	EquityCurve          []CurvePoint    `json:"equity_curve"`
	Monthly              []MonthlyPnL    `json:"monthly"`
}

// Compute derives statistics from trades. Calendar days and months are
// taken in loc; now anchors the monthly window.
//
// A closed trade counts as a win or a loss only when its P&L is defined and
// non-zero. Everything else closed is breakeven.
func Compute(trades []models.Trade, now time.Time, loc *time.Location) *Stats {
	if loc == nil {
		loc = time.UTC
	}

	s := &Stats{
		TotalTrades:  len(trades),
		WinRate:      decimal.Zero,
		TotalPnL:     decimal.Zero,
		GrossProfit:  decimal.Zero,
		GrossLoss:    decimal.Zero,
		ProfitFactor: decimal.Zero,
		AverageWin:   decimal.Zero,
		AverageLoss:  decimal.Zero,
		Expectancy:   decimal.Zero,
		EquityCurve:  []CurvePoint{},
		Monthly:      []MonthlyPnL{},
	}

	var dated []models.Trade
	for i := range trades {
		t := &trades[i]
		if !t.IsClosed() {
			s.OpenTrades++
			continue
		}
		s.ClosedTrades++

		pnl, ok := t.PnL()
		if !ok {
			continue
		}
		s.TotalPnL = s.TotalPnL.Add(pnl)
		switch {
		case pnl.IsPositive():
			s.WinningTrades++
			s.GrossProfit = s.GrossProfit.Add(pnl)
		case pnl.IsNegative():
			s.LosingTrades++
			s.GrossLoss = s.GrossLoss.Add(pnl.Abs())
		}
		if t.ExitDate != nil {
			dated = append(dated, *t)
		}
	}
	s.BreakevenTrades = s.ClosedTrades - s.WinningTrades - s.LosingTrades

	if s.ClosedTrades > 0 {
		closed := decimal.NewFromInt(int64(s.ClosedTrades))
		s.WinRate = decimal.NewFromInt(int64(s.WinningTrades)).Div(closed).Mul(hundred).Round(2)
	}
	if s.GrossLoss.IsPositive() {
		s.ProfitFactor = s.GrossProfit.Div(s.GrossLoss).Round(2)
	} else {
		s.InfiniteProfitFactor = s.GrossProfit.IsPositive()
	}
	if s.WinningTrades > 0 {
		s.AverageWin = s.GrossProfit.Div(decimal.NewFromInt(int64(s.WinningTrades))).Round(2)
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = s.GrossLoss.Div(decimal.NewFromInt(int64(s.LosingTrades))).Round(2)
	}
	if s.ClosedTrades > 0 {
		closed := decimal.NewFromInt(int64(s.ClosedTrades))
		winRate := decimal.NewFromInt(int64(s.WinningTrades)).Div(closed)
		lossRate := decimal.NewFromInt(int64(s.LosingTrades)).Div(closed)
		s.Expectancy = winRate.Mul(s.AverageWin).Sub(lossRate.Mul(s.AverageLoss)).Round(2)
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].ExitDate.Before(*dated[j].ExitDate)
	})
	s.EquityCurve = equityCurve(dated, loc)
	s.Monthly = monthly(dated, now, loc)

	return s
}

func equityCurve(dated []models.Trade, loc *time.Location) []CurvePoint {
	points := make([]CurvePoint, 0, len(dated))
	cumulative := decimal.Zero
	for i := range dated {
		pnl, _ := dated[i].PnL()
		cumulative = cumulative.Add(pnl)
		points = append(points, CurvePoint{
			Date:  dated[i].ExitDate.In(loc).Format("2006-01-02"),
			Value: cumulative,
		})
	}
	return points
}

// monthly groups realized P&L of the last MonthsOfHistory months, one entry
// per month, oldest first. Months without closed trades are zero.
func monthly(dated []models.Trade, now time.Time, loc *time.Location) []MonthlyPnL {
	local := now.In(loc)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -(MonthsOfHistory - 1), 0)

	months := make([]MonthlyPnL, MonthsOfHistory)
	index := make(map[string]int, MonthsOfHistory)
	for i := range months {
		m := first.AddDate(0, i, 0)
		key := m.Format("2006-01")
		months[i] = MonthlyPnL{Month: key, Label: m.Format("Jan"), PnL: decimal.Zero}
		index[key] = i
	}

	for i := range dated {
		key := dated[i].ExitDate.In(loc).Format("2006-01")
		idx, ok := index[key]
		if !ok {
			continue
		}
		pnl, _ := dated[i].PnL()
		months[idx].PnL = months[idx].PnL.Add(pnl)
	}
	return months
}
