// Package query derives read-only projections from ledger snapshots.
// Every function is pure and takes the reference time as an argument,
// so projections are deterministic under test.
package query

import (
	"sort"
	"strconv"
	"time"

	"github.com/Joram-tec/expense-pro/internal/core"
)

// Period selects the time window of a projection.
type Period string

const (
	Week  Period = "week"
	Month Period = "month"
	Year  Period = "year"
	All   Period = "all"
)

// IsValid reports whether p is a known period.
func (p Period) IsValid() bool {
	switch p {
	case Week, Month, Year, All:
		return true
	default:
		return false
	}
}

// TrendPoint is one bucket of a time series.
type TrendPoint struct {
	Bucket string
	Total  core.Money
}

// CategoryTotal is one row of a per-category aggregate.
type CategoryTotal struct {
	Category string
	Total    core.Money
}

// BudgetStatus compares month-to-date spending in a category against its
// advisory limit. Budgets are observed here only, never enforced.
type BudgetStatus struct {
	Category string
	Limit    core.Money
	Spent    core.Money
	Over     bool
}

// FilterByPeriod keeps transactions inside the window anchored at now,
// evaluated in now's location (local civil time).
func FilterByPeriod(txs []core.Transaction, p Period, now time.Time) []core.Transaction {
	if p == All {
		out := make([]core.Transaction, len(txs))
		copy(out, txs)
		return out
	}

	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		d := t.Date.In(now.Location())
		switch p {
		case Week:
			if !d.Before(now.AddDate(0, 0, -7)) {
				out = append(out, t)
			}
		case Month:
			if d.Year() == now.Year() && d.Month() == now.Month() {
				out = append(out, t)
			}
		case Year:
			if d.Year() == now.Year() {
				out = append(out, t)
			}
		}
	}
	return out
}

// ExpenseTotal sums the magnitudes of all expense entries.
func ExpenseTotal(txs []core.Transaction) core.Money {
	var cents int64
	for _, t := range txs {
		if t.Amount.Cents < 0 {
			cents += -t.Amount.Cents
		}
	}
	return core.Money{Cents: cents}
}

// ByCategory aggregates expense magnitudes per category.
func ByCategory(txs []core.Transaction) map[string]core.Money {
	out := make(map[string]core.Money)
	for _, t := range txs {
		if t.Amount.Cents >= 0 {
			continue
		}
		cat := t.Category
		if cat == "" {
			cat = "Other"
		}
		out[cat] = core.Money{Cents: out[cat].Cents - t.Amount.Cents}
	}
	return out
}

// TopCategories returns the k largest categories by expense total, ties
// broken by lexicographic category name.
func TopCategories(txs []core.Transaction, k int) []CategoryTotal {
	byCat := ByCategory(txs)
	out := make([]CategoryTotal, 0, len(byCat))
	for cat, total := range byCat {
		out = append(out, CategoryTotal{Category: cat, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total.Cents != out[j].Total.Cents {
			return out[i].Total.Cents > out[j].Total.Cents
		}
		return out[i].Category < out[j].Category
	})
	if k >= 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

// Trend buckets expense magnitudes along the axis implied by the period:
// weekday labels for a week, day of month for a month, short month names
// otherwise. Buckets are emitted in calendar order, zeroes included, so
// charts get a stable axis.
func Trend(txs []core.Transaction, p Period, now time.Time) []TrendPoint {
	labels, keyOf := trendAxis(p, now)

	totals := make(map[string]int64, len(labels))
	for _, t := range txs {
		if t.Amount.Cents >= 0 {
			continue
		}
		key := keyOf(t.Date.In(now.Location()))
		totals[key] += -t.Amount.Cents
	}

	out := make([]TrendPoint, 0, len(labels))
	for _, label := range labels {
		out = append(out, TrendPoint{Bucket: label, Total: core.Money{Cents: totals[label]}})
	}
	return out
}

func trendAxis(p Period, now time.Time) ([]string, func(time.Time) string) {
	switch p {
	case Week:
		// Seven buckets ending today, labeled by weekday.
		labels := make([]string, 0, 7)
		for i := 6; i >= 0; i-- {
			labels = append(labels, now.AddDate(0, 0, -i).Weekday().String()[:3])
		}
		return labels, func(d time.Time) string { return d.Weekday().String()[:3] }
	case Month:
		days := daysIn(now.Year(), now.Month())
		labels := make([]string, 0, days)
		for d := 1; d <= days; d++ {
			labels = append(labels, strconv.Itoa(d))
		}
		return labels, func(d time.Time) string { return strconv.Itoa(d.Day()) }
	default:
		labels := make([]string, 0, 12)
		for m := time.January; m <= time.December; m++ {
			labels = append(labels, m.String()[:3])
		}
		return labels, func(d time.Time) string { return d.Month().String()[:3] }
	}
}

// BudgetReport evaluates every budget against the month-to-date spend.
func BudgetReport(txs []core.Transaction, budgets []core.Budget, now time.Time) []BudgetStatus {
	monthly := ByCategory(FilterByPeriod(txs, Month, now))

	out := make([]BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		spent := monthly[b.Category]
		out = append(out, BudgetStatus{
			Category: b.Category,
			Limit:    b.Limit,
			Spent:    spent,
			Over:     spent.Cents > b.Limit.Cents,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
