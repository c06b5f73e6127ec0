package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/store"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// PartiesTable holds the master data next to the records table.
const PartiesTable = "parties"

// PartyRow is one row of ledger.parties.
type PartyRow struct {
	PartyID  string              `bigquery:"party_id"` // REQUIRED
	Role     string              `bigquery:"role"`     // REQUIRED: pic | agent | supplier
	Name     string              `bigquery:"name"`     // REQUIRED, product for suppliers
	IC       bigquery.NullString `bigquery:"ic"`
	Category bigquery.NullString `bigquery:"category"`
	Rate     *big.Rat            `bigquery:"commission_rate"` // NUMERIC, agents only

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// ToPartyRow converts p into a row.
func ToPartyRow(p domain.Party, partyID string) *PartyRow {
	row := &PartyRow{
		PartyID:   partyID,
		Role:      p.Role.String(),
		Name:      p.Name,
		IC:        bigquery.NullString{StringVal: p.IC, Valid: p.IC != ""},
		Category:  bigquery.NullString{StringVal: p.Category, Valid: p.Category != ""},
		CreatedTS: p.CreatedAt,
	}
	if p.Role == domain.RoleAgent {
		row.Rate = p.Rate.Rat()
	}
	return row
}

// FromPartyRow converts a stored row back into a party.
func FromPartyRow(row *PartyRow) (domain.Party, error) {
	role, err := domain.ParseRole(row.Role)
	if err != nil {
		return domain.Party{}, fmt.Errorf("FromPartyRow: %w", err)
	}
	return domain.Party{
		Role:      role,
		Name:      row.Name,
		IC:        row.IC.StringVal,
		Category:  row.Category.StringVal,
		Rate:      ratToDecimal(row.Rate),
		CreatedAt: row.CreatedTS,
	}, nil
}

func createPartiesDDL(table Table) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  party_id        STRING NOT NULL,
  role            STRING NOT NULL,
  name            STRING NOT NULL,
  ic              STRING,
  category        STRING,
  commission_rate NUMERIC,
  created_ts      TIMESTAMP NOT NULL
)
CLUSTER BY role`, table)
}

// InsertPartyWithClient streams one party into the table using the
// provided BigQuery client.
func InsertPartyWithClient(ctx context.Context, client *bigquery.Client, table Table, p domain.Party) error {
	row := ToPartyRow(p, uuid.NewString())

	inserter := client.DatasetInProject(table.Project, table.Dataset).Table(table.Name).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return store.Classify("AppendParty", fmt.Errorf("InsertParty: inserting row: %w", err))
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("party_id", row.PartyID).Str("role", row.Role).Msg("party inserted")
	return nil
}

func partiesQuery(table Table) string {
	return fmt.Sprintf(`
		SELECT
			p.party_id,
			p.role,
			p.name,
			p.ic,
			p.category,
			p.commission_rate,
			p.created_ts
		FROM %s p
		WHERE p.role = @role
		ORDER BY p.created_ts
	`, table)
}

// ListPartiesWithClient reads every party of role using the provided
// BigQuery client.
func ListPartiesWithClient(ctx context.Context, client *bigquery.Client, table Table, role domain.Role) ([]domain.Party, error) {
	q := client.Query(partiesQuery(table))
	q.Parameters = []bigquery.QueryParameter{{Name: "role", Value: role.String()}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, store.Classify("ListParties", fmt.Errorf("ListParties: query read: %w", err))
	}

	log := logger.FromContext(ctx)
	var out []domain.Party
	for {
		var row PartyRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, store.Classify("ListParties", fmt.Errorf("ListParties: iter next: %w", err))
		}
		p, err := FromPartyRow(&row)
		if err != nil {
			log.Warn().Err(err).Str("party_id", row.PartyID).Msg("skipping malformed party")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
