package sheets

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/validation"
	"github.com/shopspring/decimal"
)

// Headers is the header row of every ledger tab. The commission columns
// are only filled on sales tabs.
var Headers = []interface{}{
	"Date", "Category", "Amount", "Note", "Counterparty", "Receipt", "Recorded At", "Record ID",
	"Agent", "IC", "Comm Rate", "Comm Amount",
}

const (
	colDate = iota
	colCategory
	colAmount
	colNote
	colCounterparty
	colReceipt
	colRecordedAt
	colRecordID
	colAgent
	colAgentIC
	colCommRate
	colCommAmount
)

// EncodeRow converts rec into the cell values of one ledger row.
func EncodeRow(rec domain.TransactionRecord, recordedAt time.Time, recordID string) []interface{} {
	row := []interface{}{
		rec.Date.Format(domain.DateLayout),
		domain.CategoryLabel(rec.Kind, rec.Category),
		rec.Amount.StringFixed(2),
		rec.Note,
		rec.Counterparty,
		rec.PhotoRef,
		recordedAt.Format(time.RFC3339),
		recordID,
	}
	if !rec.Commission.IsZero() {
		row = append(row,
			rec.Commission.AgentName,
			rec.Commission.AgentIC,
			domain.FormatRate(rec.Commission.Rate),
			rec.Commission.Amount.StringFixed(2),
		)
	}
	return row
}

// DecodeRow parses one ledger row of kind. Dates are read in loc.
func DecodeRow(kind domain.Kind, row []interface{}, loc *time.Location) (domain.TransactionRecord, error) {
	cell := func(i int) string {
		if i >= len(row) || row[i] == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(row[i]))
	}

	date, err := time.ParseInLocation(domain.DateLayout, cell(colDate), loc)
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("DecodeRow: date %q: %w", cell(colDate), err)
	}
	category, err := validation.ValidateCategory(cell(colCategory), kind)
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("DecodeRow: %w", err)
	}
	amount, err := parseAmount(cell(colAmount))
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("DecodeRow: amount %q: %w", cell(colAmount), err)
	}

	rec := domain.TransactionRecord{
		Kind:         kind,
		Category:     category,
		Amount:       amount,
		Date:         date,
		Note:         validation.NormalizeText(cell(colNote)),
		Counterparty: validation.NormalizeText(cell(colCounterparty)),
		PhotoRef:     cell(colReceipt),
	}
	if agent := cell(colAgent); agent != "" {
		c, err := decodeCommission(agent, cell(colAgentIC), cell(colCommRate), cell(colCommAmount))
		if err != nil {
			return domain.TransactionRecord{}, fmt.Errorf("DecodeRow: %w", err)
		}
		rec.Commission = c
	}
	return rec, nil
}

func decodeCommission(agent, ic, rawRate, rawAmount string) (domain.Commission, error) {
	rate := decimal.Zero
	if rawRate != "" {
		r, err := validation.ValidateRate(rawRate)
		if err != nil {
			return domain.Commission{}, err
		}
		rate = r
	}
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return domain.Commission{}, fmt.Errorf("commission amount %q: %w", rawAmount, err)
	}
	return domain.Commission{AgentName: agent, AgentIC: ic, Rate: rate, Amount: amount}, nil
}

// parseAmount accepts what a spreadsheet may render for an amount cell,
// e.g. "1,250.5" or "¥88".
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimLeft(s, "¥￥$ ")
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("negative amount")
	}
	return d.Round(2), nil
}
