package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/store"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

const (
	// DefaultDataset and RecordsTable locate ledger rows.
	DefaultDataset = "ledger"
	RecordsTable   = "records"
	dateFormat     = "2006-01-02"
)

// Table identifies the records table.
type Table struct {
	Project string
	Dataset string
	Name    string
}

func (t Table) String() string {
	return fmt.Sprintf("`%s.%s.%s`", t.Project, t.Dataset, t.Name)
}

// InsertRecordWithClient streams one record into the table using the
// provided BigQuery client and returns its row reference.
func InsertRecordWithClient(ctx context.Context, client *bigquery.Client, table Table, sheet string, rec domain.TransactionRecord) (store.RowRef, error) {
	row := ToRow(sheet, rec, uuid.NewString(), time.Now())

	inserter := client.DatasetInProject(table.Project, table.Dataset).Table(table.Name).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return "", store.Classify("AppendRecord", fmt.Errorf("InsertRecord: inserting row: %w", err))
	}

	ref := store.RowRef(fmt.Sprintf("%s.%s/%s", table.Dataset, table.Name, row.RecordID))
	log := logger.FromContext(ctx)
	log.Debug().Str(logger.FieldRowRef, string(ref)).Msg("record inserted")
	return ref, nil
}

// recordsQuery selects the rows of one sheet and kind in [start_date, end_date).
func recordsQuery(table Table) string {
	return fmt.Sprintf(`
		SELECT
			r.record_id,
			r.sheet,
			r.kind,
			r.record_date,
			r.category,
			r.amount,
			r.note,
			r.counterparty,
			r.photo_ref,
			r.agent_name,
			r.agent_ic,
			r.commission_rate,
			r.commission_amount,
			r.created_ts
		FROM %s r
		WHERE r.sheet = @sheet
		  AND r.kind = @kind
		  AND r.record_date >= @start_date
		  AND r.record_date < @end_date
		ORDER BY r.record_date, r.created_ts
	`, table)
}

// QueryRecordsWithClient reads the records of one sheet and kind within
// period using the provided BigQuery client.
func QueryRecordsWithClient(ctx context.Context, client *bigquery.Client, table Table, sheet string, kind domain.Kind, period domain.ReportPeriod, loc *time.Location) ([]domain.TransactionRecord, error) {
	start, end := period.Bounds(loc)

	q := client.Query(recordsQuery(table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "sheet", Value: sheet},
		{Name: "kind", Value: kind.String()},
		{Name: "start_date", Value: start.Format(dateFormat)},
		{Name: "end_date", Value: end.Format(dateFormat)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, store.Classify("QueryRecords", fmt.Errorf("QueryRecords: query read: %w", err))
	}

	log := logger.FromContext(ctx)
	var out []domain.TransactionRecord
	for {
		var row RecordRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, store.Classify("QueryRecords", fmt.Errorf("QueryRecords: iter next: %w", err))
		}
		rec, err := FromRow(&row, loc)
		if err != nil {
			log.Warn().Err(err).Str("record_id", row.RecordID).Msg("skipping malformed record")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
