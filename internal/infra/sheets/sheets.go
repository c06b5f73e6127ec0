// Package sheets stores ledger records in a Google spreadsheet, one tab per
// record kind.
package sheets

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/store"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const (
	rowRange    = "A2:L"
	headerRange = "A1:L1"
)

// Client is a store.RecordStore backed by one spreadsheet.
type Client struct {
	svc           *gsheets.Service
	spreadsheetID string
	loc           *time.Location
	now           func() time.Time
}

// NewClient creates a Sheets service authenticated with a service account
// key. Extra options, e.g. option.WithEndpoint, are passed through.
func NewClient(ctx context.Context, spreadsheetID string, credentialsJSON []byte, opts ...option.ClientOption) (*Client, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("NewClient: spreadsheet id is required")
	}
	if len(credentialsJSON) > 0 {
		opts = append([]option.ClientOption{
			option.WithCredentialsJSON(credentialsJSON),
			option.WithScopes(gsheets.SpreadsheetsScope),
		}, opts...)
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewClient: creating sheets service: %w", err)
	}
	return NewClientWithService(svc, spreadsheetID), nil
}

// NewClientWithService wraps an existing service.
func NewClientWithService(svc *gsheets.Service, spreadsheetID string) *Client {
	return &Client{svc: svc, spreadsheetID: spreadsheetID, loc: time.Local, now: time.Now}
}

// WithLocation sets the location dates are read in.
func (c *Client) WithLocation(loc *time.Location) *Client {
	if loc != nil {
		c.loc = loc
	}
	return c
}

// AppendRecord implements store.RecordStore.
func (c *Client) AppendRecord(ctx context.Context, sheetKey string, rec domain.TransactionRecord) (store.RowRef, error) {
	return AppendRecordWithService(ctx, c.svc, c.spreadsheetID, sheetKey, rec, c.now())
}

// QueryRecords implements store.RecordStore.
func (c *Client) QueryRecords(ctx context.Context, sheetKey string, kind domain.Kind, period domain.ReportPeriod) ([]domain.TransactionRecord, error) {
	return QueryRecordsWithService(ctx, c.svc, c.spreadsheetID, sheetKey, kind, period, c.loc)
}

// EnsureHeaders creates missing ledger tabs and writes the header row to
// empty ones.
func (c *Client) EnsureHeaders(ctx context.Context, tabs []string) error {
	return EnsureHeadersWithService(ctx, c.svc, c.spreadsheetID, tabs, Headers)
}

// AppendRecordWithService appends rec as a new row below the last row of sheetKey.
func AppendRecordWithService(ctx context.Context, svc *gsheets.Service, spreadsheetID, sheetKey string, rec domain.TransactionRecord, recordedAt time.Time) (store.RowRef, error) {
	vr := &gsheets.ValueRange{
		Values: [][]interface{}{EncodeRow(rec, recordedAt, uuid.New().String())},
	}

	resp, err := svc.Spreadsheets.Values.Append(spreadsheetID, a1(sheetKey, rowRange), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", store.Classify("AppendRecord", fmt.Errorf("appending to %s: %w", sheetKey, err))
	}

	ref := store.RowRef(sheetKey)
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = store.RowRef(resp.Updates.UpdatedRange)
	}
	log := logger.FromContext(ctx)
	log.Debug().Str(logger.FieldRowRef, string(ref)).Msg("row appended")
	return ref, nil
}

// QueryRecordsWithService reads every row of sheetKey and keeps those inside
// period. Malformed rows are logged and skipped.
func QueryRecordsWithService(ctx context.Context, svc *gsheets.Service, spreadsheetID, sheetKey string, kind domain.Kind, period domain.ReportPeriod, loc *time.Location) ([]domain.TransactionRecord, error) {
	resp, err := svc.Spreadsheets.Values.Get(spreadsheetID, a1(sheetKey, rowRange)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, store.Classify("QueryRecords", fmt.Errorf("reading %s: %w", sheetKey, err))
	}

	log := logger.FromContext(ctx)
	var out []domain.TransactionRecord
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		rec, err := DecodeRow(kind, row, loc)
		if err != nil {
			log.Warn().Err(err).Str("sheet", sheetKey).Int("row", i+2).Msg("skipping malformed row")
			continue
		}
		if period.Contains(rec.Date) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// EnsureHeadersWithService adds tabs that do not exist yet and writes
// header to tabs whose first row is empty.
func EnsureHeadersWithService(ctx context.Context, svc *gsheets.Service, spreadsheetID string, tabs []string, header []interface{}) error {
	ss, err := svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return store.Classify("EnsureHeaders", fmt.Errorf("loading spreadsheet: %w", err))
	}
	existing := make(map[string]bool)
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			existing[sh.Properties.Title] = true
		}
	}

	var requests []*gsheets.Request
	for _, tab := range tabs {
		if !existing[tab] {
			requests = append(requests, &gsheets.Request{
				AddSheet: &gsheets.AddSheetRequest{Properties: &gsheets.SheetProperties{Title: tab}},
			})
		}
	}
	if len(requests) > 0 {
		_, err := svc.Spreadsheets.BatchUpdate(spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{Requests: requests}).
			Context(ctx).
			Do()
		if err != nil {
			return store.Classify("EnsureHeaders", fmt.Errorf("adding tabs: %w", err))
		}
	}

	log := logger.FromContext(ctx)
	for _, tab := range tabs {
		resp, err := svc.Spreadsheets.Values.Get(spreadsheetID, a1(tab, headerRange)).Context(ctx).Do()
		if err != nil {
			return store.Classify("EnsureHeaders", fmt.Errorf("reading header of %s: %w", tab, err))
		}
		if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
			continue
		}
		vr := &gsheets.ValueRange{Values: [][]interface{}{header}}
		if _, err := svc.Spreadsheets.Values.Update(spreadsheetID, a1(tab, headerRange), vr).
			ValueInputOption("RAW").
			Context(ctx).
			Do(); err != nil {
			return store.Classify("EnsureHeaders", fmt.Errorf("writing header of %s: %w", tab, err))
		}
		log.Info().Str("sheet", tab).Msg("header row written")
	}
	return nil
}

// a1 builds a quoted A1 range for a tab name that may contain spaces.
func a1(tab, cells string) string {
	return fmt.Sprintf("'%s'!%s", tab, cells)
}

var _ store.RecordStore = (*Client)(nil)
