package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the type of ledger entry a chat session collects.
type Kind int

const (
	// KindExpense is money spent (purchasing, bills, salaries).
	KindExpense Kind = iota
	// KindIncome is money received outside sales.
	KindIncome
	// KindSale is a sales invoice.
	KindSale
)

// Kinds lists every supported record kind in display order.
var Kinds = []Kind{KindExpense, KindIncome, KindSale}

func (k Kind) String() string {
	switch k {
	case KindExpense:
		return "expense"
	case KindIncome:
		return "income"
	case KindSale:
		return "sale"
	default:
		return "unknown"
	}
}

// Label is the user-facing name of the kind.
func (k Kind) Label() string {
	switch k {
	case KindExpense:
		return "支出"
	case KindIncome:
		return "收入"
	case KindSale:
		return "销售"
	default:
		return "?"
	}
}

// ParseKind maps "expense", "income" or "sale" (any case) to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expense", "expenses", "cost":
		return KindExpense, nil
	case "income":
		return KindIncome, nil
	case "sale", "sales", "invoice":
		return KindSale, nil
	}
	return 0, fmt.Errorf("unknown record kind %q", s)
}

// NoneProvided replaces empty free-text fields.
const NoneProvided = "none provided"

// DateLayout is the calendar date format used in storage and replies.
const DateLayout = "2006-01-02"

// TransactionRecord is one finished ledger entry.
// Values are only produced by record.Builder.Finalize and are not modified
// after that, except that store.Ledger fills Commission on agent sales.
// The persistence gateway receives a copy.
type TransactionRecord struct {
	Kind         Kind
	Category     Category
	Amount       decimal.Decimal // two fractional digits, never negative
	Date         time.Time       // calendar date, midnight in the bot's location
	Note         string
	Counterparty string     // merchant, supplier, payer or bill-to depending on kind
	PhotoRef     string     // file storage handle; empty when no photo was attached
	Commission   Commission // sales through a registered agent only
}

// Equal reports whether two records carry the same values.
func (r TransactionRecord) Equal(o TransactionRecord) bool {
	return r.Kind == o.Kind &&
		r.Category == o.Category &&
		r.Amount.Equal(o.Amount) &&
		r.Date.Equal(o.Date) &&
		r.Note == o.Note &&
		r.Counterparty == o.Counterparty &&
		r.PhotoRef == o.PhotoRef &&
		r.Commission.Equal(o.Commission)
}

// ReportPeriod selects a whole year (Month == 0) or one month.
type ReportPeriod struct {
	Year  int
	Month time.Month
}

// Bounds returns the half-open interval [start, end) covered by the period.
func (p ReportPeriod) Bounds(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	if p.Month == 0 {
		start := time.Date(p.Year, time.January, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0)
	}
	start := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// Contains reports whether the calendar date of t falls inside the period.
func (p ReportPeriod) Contains(t time.Time) bool {
	start, end := p.Bounds(t.Location())
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return !day.Before(start) && day.Before(end)
}

func (p ReportPeriod) String() string {
	if p.Month == 0 {
		return fmt.Sprintf("%04d", p.Year)
	}
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// PeriodOf returns the month containing t.
func PeriodOf(t time.Time) ReportPeriod {
	return ReportPeriod{Year: t.Year(), Month: t.Month()}
}
