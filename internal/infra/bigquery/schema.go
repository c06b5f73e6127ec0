package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/store"
)

// createTableDDL matches the RecordRow tags. Rows are partitioned by
// record_date and clustered by the sheet and kind the report queries filter on.
func createTableDDL(table Table) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  record_id    STRING NOT NULL,
  sheet        STRING NOT NULL,
  kind         STRING NOT NULL,
  record_date  DATE NOT NULL,
  category     STRING NOT NULL,
  amount       NUMERIC NOT NULL,
  note         STRING,
  counterparty STRING,
  photo_ref    STRING,
  agent_name   STRING,
  agent_ic     STRING,
  commission_rate   NUMERIC,
  commission_amount NUMERIC,
  created_ts   TIMESTAMP NOT NULL
)
PARTITION BY record_date
CLUSTER BY sheet, kind`, table)
}

// EnsureTableWithClient creates the records table when it is missing.
func EnsureTableWithClient(ctx context.Context, client *bigquery.Client, table Table) error {
	return runDDL(ctx, client, "EnsureTable", table, createTableDDL(table))
}

// EnsurePartiesTableWithClient creates the master-data table when it is missing.
func EnsurePartiesTableWithClient(ctx context.Context, client *bigquery.Client, table Table) error {
	return runDDL(ctx, client, "EnsurePartiesTable", table, createPartiesDDL(table))
}

func runDDL(ctx context.Context, client *bigquery.Client, op string, table Table, ddl string) error {
	job, err := client.Query(ddl).Run(ctx)
	if err != nil {
		return store.Classify(op, fmt.Errorf("running query: %w", err))
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return store.Classify(op, fmt.Errorf("waiting for job: %w", err))
	}
	if err := status.Err(); err != nil {
		return store.Classify(op, fmt.Errorf("job error: %w", err))
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("table", table.String()).Msg("table ready")
	return nil
}
