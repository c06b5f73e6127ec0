// Package bigquery stores ledger records and master data in BigQuery tables.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/store"
	"google.golang.org/api/option"
)

// RecordRepository is the BigQuery implementation of store.RecordStore.
// It holds a shared client to avoid creating a new connection for each call.
type RecordRepository struct {
	client  *bigquery.Client
	table   Table
	parties Table
	loc     *time.Location
}

// NewRecordRepository creates a repository for project and dataset with a
// shared BigQuery client. An empty dataset means DefaultDataset.
func NewRecordRepository(ctx context.Context, project, dataset string, opts ...option.ClientOption) (*RecordRepository, error) {
	if project == "" {
		return nil, fmt.Errorf("NewRecordRepository: project is required")
	}
	if dataset == "" {
		dataset = DefaultDataset
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewRecordRepository: creating client: %w", err)
	}
	return &RecordRepository{
		client:  client,
		table:   Table{Project: project, Dataset: dataset, Name: RecordsTable},
		parties: Table{Project: project, Dataset: dataset, Name: PartiesTable},
		loc:     time.Local,
	}, nil
}

// WithLocation sets the zone used to bound report periods.
func (r *RecordRepository) WithLocation(loc *time.Location) *RecordRepository {
	if loc != nil {
		r.loc = loc
	}
	return r
}

// EnsureTable creates the records and parties tables when they are missing.
func (r *RecordRepository) EnsureTable(ctx context.Context) error {
	if err := EnsureTableWithClient(ctx, r.client, r.table); err != nil {
		return err
	}
	return EnsurePartiesTableWithClient(ctx, r.client, r.parties)
}

// Close closes the BigQuery client connection.
func (r *RecordRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// AppendRecord delegates to InsertRecordWithClient with the shared client.
func (r *RecordRepository) AppendRecord(ctx context.Context, sheetKey string, rec domain.TransactionRecord) (store.RowRef, error) {
	return InsertRecordWithClient(ctx, r.client, r.table, sheetKey, rec)
}

// QueryRecords delegates to QueryRecordsWithClient with the shared client.
func (r *RecordRepository) QueryRecords(ctx context.Context, sheetKey string, kind domain.Kind, period domain.ReportPeriod) ([]domain.TransactionRecord, error) {
	return QueryRecordsWithClient(ctx, r.client, r.table, sheetKey, kind, period, r.loc)
}

// AppendParty delegates to InsertPartyWithClient with the shared client.
func (r *RecordRepository) AppendParty(ctx context.Context, p domain.Party) error {
	return InsertPartyWithClient(ctx, r.client, r.parties, p)
}

// ListParties delegates to ListPartiesWithClient with the shared client.
func (r *RecordRepository) ListParties(ctx context.Context, role domain.Role) ([]domain.Party, error) {
	return ListPartiesWithClient(ctx, r.client, r.parties, role)
}

var (
	_ store.RecordStore    = (*RecordRepository)(nil)
	_ store.DirectoryStore = (*RecordRepository)(nil)
)
