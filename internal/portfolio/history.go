package portfolio

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"nepse-journal/internal/models"
)

// StartLabel labels the single point emitted for an empty ledger.
const StartLabel = "Start"

const (
	dateKeyLayout = "2006-01-02"
	labelLayout   = "Jan 02"
)

// BalancePoint is the running balance at the end of one calendar day.
type BalancePoint struct {
	Label string          `json:"label"`
	Date  string          `json:"date,omitempty"`
	Value decimal.Decimal `json:"value"`
}

// Project builds the chronological balance series of a ledger.
//
// Every calendar day (in loc) on which a transaction happened or a trade
// was closed yields exactly one point, in ascending order. Each day applies
// its transactions first and then the P&L realized that day. A ledger with
// no dated activity yields a single StartLabel point at the initial
// capital. Closed trades without an exit date are not tied to a day and do
// not appear in the series.
func Project(initialCapital decimal.Decimal, txns []models.Transaction, trades []models.Trade, loc *time.Location) []BalancePoint {
	if loc == nil {
		loc = time.UTC
	}

	type day struct {
		date     time.Time
		cash     decimal.Decimal
		realized decimal.Decimal
	}
	days := make(map[string]*day)
	dayFor := func(t time.Time) *day {
		local := t.In(loc)
		key := local.Format(dateKeyLayout)
		d, ok := days[key]
		if !ok {
			d = &day{date: local}
			days[key] = d
		}
		return d
	}

	for i := range txns {
		d := dayFor(txns[i].Date)
		d.cash = d.cash.Add(txns[i].Signed())
	}
	for i := range trades {
		t := &trades[i]
		if !t.IsClosed() || t.ExitDate == nil {
			continue
		}
		// A closed trade with an exit date still marks its day even when
		// its P&L is undefined.
		d := dayFor(*t.ExitDate)
		if pnl, ok := t.PnL(); ok {
			d.realized = d.realized.Add(pnl)
		}
	}

	if len(days) == 0 {
		return []BalancePoint{{Label: StartLabel, Value: initialCapital}}
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	points := make([]BalancePoint, 0, len(keys))
	running := initialCapital
	for _, k := range keys {
		d := days[k]
		running = running.Add(d.cash).Add(d.realized)
		points = append(points, BalancePoint{
			Label: d.date.Format(labelLayout),
			Date:  k,
			Value: running,
		})
	}
	return points
}
