package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/store"
	"github.com/dvloznov/finance-bot/internal/validation"
	"github.com/shopspring/decimal"
	gsheets "google.golang.org/api/sheets/v4"
)

// PartyHeaders is the header row of the master-data tabs.
var PartyHeaders = []interface{}{"Name", "IC", "Category", "Comm Rate", "Created At"}

const partyRange = "A2:E"

// EncodeParty converts p into the cells of one master-data row.
func EncodeParty(p domain.Party) []interface{} {
	rate := ""
	if p.Role == domain.RoleAgent {
		rate = domain.FormatRate(p.Rate)
	}
	return []interface{}{p.Name, p.IC, p.Category, rate, p.CreatedAt.Format(time.RFC3339)}
}

// DecodeParty parses one master-data row of role.
func DecodeParty(role domain.Role, row []interface{}) (domain.Party, error) {
	cell := func(i int) string {
		if i >= len(row) || row[i] == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(row[i]))
	}

	p := domain.Party{Role: role, Name: cell(0), IC: cell(1), Category: cell(2), Rate: decimal.Zero}
	if p.Name == "" {
		return domain.Party{}, fmt.Errorf("DecodeParty: name is empty")
	}
	if raw := cell(3); raw != "" {
		rate, err := validation.ValidateRate(raw)
		if err != nil {
			return domain.Party{}, fmt.Errorf("DecodeParty: %w", err)
		}
		p.Rate = rate
	}
	if raw := cell(4); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			p.CreatedAt = t
		}
	}
	return p, nil
}

// AppendParty implements store.DirectoryStore.
func (c *Client) AppendParty(ctx context.Context, p domain.Party) error {
	return AppendPartyWithService(ctx, c.svc, c.spreadsheetID, store.DirectoryTabs[p.Role], p)
}

// ListParties implements store.DirectoryStore.
func (c *Client) ListParties(ctx context.Context, role domain.Role) ([]domain.Party, error) {
	return ListPartiesWithService(ctx, c.svc, c.spreadsheetID, store.DirectoryTabs[role], role)
}

// EnsureDirectoryHeaders creates the master-data tabs with their header row.
func (c *Client) EnsureDirectoryHeaders(ctx context.Context) error {
	tabs := make([]string, 0, len(domain.Roles))
	for _, role := range domain.Roles {
		tabs = append(tabs, store.DirectoryTabs[role])
	}
	return EnsureHeadersWithService(ctx, c.svc, c.spreadsheetID, tabs, PartyHeaders)
}

// AppendPartyWithService appends p as a new row of tab.
func AppendPartyWithService(ctx context.Context, svc *gsheets.Service, spreadsheetID, tab string, p domain.Party) error {
	vr := &gsheets.ValueRange{Values: [][]interface{}{EncodeParty(p)}}
	_, err := svc.Spreadsheets.Values.Append(spreadsheetID, a1(tab, partyRange), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return store.Classify("AppendParty", fmt.Errorf("appending to %s: %w", tab, err))
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("sheet", tab).Str("name", p.Name).Msg("party appended")
	return nil
}

// ListPartiesWithService reads every row of tab. Malformed rows are logged
// and skipped.
func ListPartiesWithService(ctx context.Context, svc *gsheets.Service, spreadsheetID, tab string, role domain.Role) ([]domain.Party, error) {
	resp, err := svc.Spreadsheets.Values.Get(spreadsheetID, a1(tab, partyRange)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, store.Classify("ListParties", fmt.Errorf("reading %s: %w", tab, err))
	}

	log := logger.FromContext(ctx)
	var out []domain.Party
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		p, err := DecodeParty(role, row)
		if err != nil {
			log.Warn().Err(err).Str("sheet", tab).Int("row", i+2).Msg("skipping malformed party")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

var _ store.DirectoryStore = (*Client)(nil)
