package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/shopspring/decimal"
)

// RecordRow is one row of ledger.records.
type RecordRow struct {
	RecordID string `bigquery:"record_id"` // REQUIRED
	Sheet    string `bigquery:"sheet"`     // REQUIRED, sheet key the record was appended to
	Kind     string `bigquery:"kind"`      // REQUIRED: expense | income | sale

	RecordDate civil.Date `bigquery:"record_date"` // REQUIRED
	Category   string     `bigquery:"category"`    // REQUIRED, canonical category name
	Amount     *big.Rat   `bigquery:"amount"`      // REQUIRED NUMERIC

	Note         string              `bigquery:"note"`
	Counterparty string              `bigquery:"counterparty"`
	PhotoRef     bigquery.NullString `bigquery:"photo_ref"` // NULLABLE

	// Commission columns, NULL unless an agent earned a share of the sale.
	AgentName        bigquery.NullString `bigquery:"agent_name"`
	AgentIC          bigquery.NullString `bigquery:"agent_ic"`
	CommissionRate   *big.Rat            `bigquery:"commission_rate"`   // NUMERIC
	CommissionAmount *big.Rat            `bigquery:"commission_amount"` // NUMERIC

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// ToRow converts rec into a row for sheet.
func ToRow(sheet string, rec domain.TransactionRecord, recordID string, createdAt time.Time) *RecordRow {
	row := &RecordRow{
		RecordID:     recordID,
		Sheet:        sheet,
		Kind:         rec.Kind.String(),
		RecordDate:   civil.DateOf(rec.Date),
		Category:     string(rec.Category),
		Amount:       rec.Amount.Rat(),
		Note:         rec.Note,
		Counterparty: rec.Counterparty,
		PhotoRef:     bigquery.NullString{StringVal: rec.PhotoRef, Valid: rec.PhotoRef != ""},
		CreatedTS:    createdAt,
	}
	if c := rec.Commission; !c.IsZero() {
		row.AgentName = bigquery.NullString{StringVal: c.AgentName, Valid: true}
		row.AgentIC = bigquery.NullString{StringVal: c.AgentIC, Valid: c.AgentIC != ""}
		row.CommissionRate = c.Rate.Rat()
		row.CommissionAmount = c.Amount.Rat()
	}
	return row
}

// FromRow converts a stored row back into a record, with the date at
// midnight in loc.
func FromRow(row *RecordRow, loc *time.Location) (domain.TransactionRecord, error) {
	kind, err := domain.ParseKind(row.Kind)
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("FromRow: %w", err)
	}
	category := domain.Category(row.Category)
	if !domain.HasCategory(kind, category) {
		return domain.TransactionRecord{}, fmt.Errorf("FromRow: category %q is not a %s category", row.Category, kind)
	}
	if row.Amount == nil {
		return domain.TransactionRecord{}, fmt.Errorf("FromRow: amount is null")
	}
	amount, err := decimal.NewFromString(row.Amount.FloatString(2))
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("FromRow: amount: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}

	rec := domain.TransactionRecord{
		Kind:         kind,
		Category:     category,
		Amount:       amount,
		Date:         row.RecordDate.In(loc),
		Note:         row.Note,
		Counterparty: row.Counterparty,
		PhotoRef:     row.PhotoRef.StringVal,
	}
	if row.AgentName.Valid {
		rec.Commission = domain.Commission{
			AgentName: row.AgentName.StringVal,
			AgentIC:   row.AgentIC.StringVal,
			Rate:      ratToDecimal(row.CommissionRate),
			Amount:    ratToDecimal(row.CommissionAmount).Round(2),
		}
	}
	return rec, nil
}

// ratToDecimal converts a NUMERIC value; NULL becomes zero. NUMERIC holds
// nine fractional digits.
func ratToDecimal(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(r.FloatString(9))
	if err != nil {
		return decimal.Zero
	}
	return d
}
