package report

import (
	"fmt"
	"sort"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/xuri/excelize/v2"
)

// SummarySheet is the name of the totals sheet in exported workbooks.
const SummarySheet = "Summary"

// XLSXMimeType is the content type of exported workbooks.
const XLSXMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var recordHeaders = []string{"Date", "Category", "Amount", "Note", "Counterparty", "Receipt"}

// commissionHeaders follow recordHeaders on the sales sheet.
var commissionHeaders = []string{"Agent", "IC", "Comm Rate", "Comm Amount"}

// ExportFilename returns the document name used for a period export.
func ExportFilename(period domain.ReportPeriod) string {
	return fmt.Sprintf("ledger_%s.xlsx", period)
}

// SheetName returns the workbook sheet holding records of kind.
func SheetName(kind domain.Kind) string {
	switch kind {
	case domain.KindExpense:
		return "Expenses"
	case domain.KindIncome:
		return "Income"
	case domain.KindSale:
		return "Sales"
	}
	return kind.String()
}

// ExportXLSX renders a workbook with one sheet of rows per kind and a
// totals sheet. Records outside the summary period are skipped.
func ExportXLSX(s Summary, records []domain.TransactionRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, fmt.Errorf("ExportXLSX: renaming default sheet: %w", err)
	}
	if err := writeSummary(f, s); err != nil {
		return nil, err
	}

	byKind := make(map[domain.Kind][]domain.TransactionRecord)
	for _, rec := range records {
		if s.Period.Contains(rec.Date) {
			byKind[rec.Kind] = append(byKind[rec.Kind], rec)
		}
	}
	for _, kind := range domain.Kinds {
		if err := writeRecords(f, kind, byKind[kind]); err != nil {
			return nil, err
		}
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("ExportXLSX: writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, s Summary) error {
	rows := [][]interface{}{
		{"Period", s.Period.String()},
		{"Kind", "Category", "Total", "Records"},
	}
	for _, kind := range domain.Kinds {
		r := s.ByKind[kind]
		for _, c := range r.Categories() {
			rows = append(rows, []interface{}{kind.Label(), domain.CategoryLabel(kind, c), r.TotalByCategory[c].InexactFloat64(), ""})
		}
		rows = append(rows, []interface{}{kind.Label(), "Total", r.GrandTotal.InexactFloat64(), r.Count})
	}
	rows = append(rows,
		[]interface{}{"Commission", "", s.Commission.InexactFloat64(), ""},
		[]interface{}{"Gross profit", "", s.GrossProfit.InexactFloat64(), ""},
		[]interface{}{"Net", "", s.Net.InexactFloat64(), s.Records},
	)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("writeSummary: cell name: %w", err)
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("writeSummary: row %d: %w", i+1, err)
		}
	}
	return nil
}

func writeRecords(f *excelize.File, kind domain.Kind, records []domain.TransactionRecord) error {
	sheet := SheetName(kind)
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("writeRecords: creating sheet %s: %w", sheet, err)
	}

	headers := recordHeaders
	if kind == domain.KindSale {
		headers = append(append([]string{}, recordHeaders...), commissionHeaders...)
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("writeRecords: header: %w", err)
		}
	}

	sorted := make([]domain.TransactionRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	for i, rec := range sorted {
		row := i + 2
		values := []interface{}{
			rec.Date.Format(domain.DateLayout),
			domain.CategoryLabel(kind, rec.Category),
			rec.Amount.InexactFloat64(),
			rec.Note,
			rec.Counterparty,
			rec.PhotoRef,
		}
		if kind == domain.KindSale && !rec.Commission.IsZero() {
			values = append(values,
				rec.Commission.AgentName,
				rec.Commission.AgentIC,
				domain.FormatRate(rec.Commission.Rate),
				rec.Commission.Amount.InexactFloat64(),
			)
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &values); err != nil {
			return fmt.Errorf("writeRecords: row %d: %w", row, err)
		}
	}
	return nil
}
