// Package report sums committed records per category for a period.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/shopspring/decimal"
)

// Report is the category breakdown of one set of records.
// Categories without matching records are absent from TotalByCategory.
type Report struct {
	Period          domain.ReportPeriod
	TotalByCategory map[domain.Category]decimal.Decimal
	GrandTotal      decimal.Decimal
	Count           int
}

// Aggregate sums the records whose date falls inside period.
func Aggregate(period domain.ReportPeriod, records []domain.TransactionRecord) Report {
	r := Report{
		Period:          period,
		TotalByCategory: make(map[domain.Category]decimal.Decimal),
		GrandTotal:      decimal.Zero,
	}
	for _, rec := range records {
		if !period.Contains(rec.Date) {
			continue
		}
		r.TotalByCategory[rec.Category] = r.TotalByCategory[rec.Category].Add(rec.Amount)
		r.GrandTotal = r.GrandTotal.Add(rec.Amount)
		r.Count++
	}
	return r
}

// Categories returns the categories present in r, largest total first and
// by name on ties.
func (r Report) Categories() []domain.Category {
	cats := make([]domain.Category, 0, len(r.TotalByCategory))
	for c := range r.TotalByCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		a, b := r.TotalByCategory[cats[i]], r.TotalByCategory[cats[j]]
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return cats[i] < cats[j]
	})
	return cats
}

// Summary is the profit and loss view of a period: one report per kind.
type Summary struct {
	Period      domain.ReportPeriod
	ByKind      map[domain.Kind]Report
	Commission  decimal.Decimal // agent commission on sales
	GrossProfit decimal.Decimal // sales - commission
	Net         decimal.Decimal // income + gross profit - expenses
	Records     int
}

// Summarize splits records by kind and aggregates each kind.
func Summarize(period domain.ReportPeriod, records []domain.TransactionRecord) Summary {
	byKind := make(map[domain.Kind][]domain.TransactionRecord)
	for _, rec := range records {
		byKind[rec.Kind] = append(byKind[rec.Kind], rec)
	}

	s := Summary{
		Period:      period,
		ByKind:      make(map[domain.Kind]Report),
		Commission:  decimal.Zero,
		GrossProfit: decimal.Zero,
		Net:         decimal.Zero,
	}
	for _, kind := range domain.Kinds {
		r := Aggregate(period, byKind[kind])
		s.ByKind[kind] = r
		s.Records += r.Count
	}
	for _, rec := range byKind[domain.KindSale] {
		if period.Contains(rec.Date) {
			s.Commission = s.Commission.Add(rec.Commission.Amount)
		}
	}
	s.GrossProfit = s.ByKind[domain.KindSale].GrandTotal.Sub(s.Commission)
	s.Net = s.ByKind[domain.KindIncome].GrandTotal.Add(s.GrossProfit).Sub(s.ByKind[domain.KindExpense].GrandTotal)
	return s
}

// Format renders s as a chat reply.
func Format(s Summary) string {
	if s.Records == 0 {
		return fmt.Sprintf("No data for %s.", s.Period)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Report for %s\n", s.Period)
	for _, kind := range domain.Kinds {
		r := s.ByKind[kind]
		if r.Count == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s: %s (%d records)\n", kind.Label(), r.GrandTotal.StringFixed(2), r.Count)
		for _, c := range r.Categories() {
			fmt.Fprintf(&b, "  %s: %s\n", domain.CategoryLabel(kind, c), r.TotalByCategory[c].StringFixed(2))
		}
		if kind == domain.KindSale {
			fmt.Fprintf(&b, "Commission: %s\nGross profit: %s\n", s.Commission.StringFixed(2), s.GrossProfit.StringFixed(2))
		}
	}
	fmt.Fprintf(&b, "\nNet: %s", s.Net.StringFixed(2))
	return b.String()
}
