package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func newService() *Service {
	return NewService(memory.NewStore(), func() time.Time { return fixedNow })
}

func TestAddRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newService()

	_, err := s.Add(ctx, domain.Party{Role: domain.RoleAgent, Name: "Ali", IC: "A123", Rate: decimal.RequireFromString("0.05")})
	require.NoError(t, err)
	_, err = s.Add(ctx, domain.Party{Role: domain.RolePIC, Name: "Mei"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		party   domain.Party
		wantDup bool
	}{
		{name: "same agent name other case", party: domain.Party{Role: domain.RoleAgent, Name: "ALI", IC: "B9"}, wantDup: true},
		{name: "same agent IC", party: domain.Party{Role: domain.RoleAgent, Name: "Abu", IC: "a123"}, wantDup: true},
		{name: "new agent", party: domain.Party{Role: domain.RoleAgent, Name: "Abu", IC: "C7"}},
		{name: "same person", party: domain.Party{Role: domain.RolePIC, Name: " mei "}, wantDup: true},
		{name: "agent name reused as person", party: domain.Party{Role: domain.RolePIC, Name: "Ali"}},
		{name: "suppliers may repeat", party: domain.Party{Role: domain.RoleSupplier, Name: "flour", Category: "原材料"}},
		{name: "suppliers may repeat again", party: domain.Party{Role: domain.RoleSupplier, Name: "flour", Category: "原材料"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Add(ctx, tt.party)
			if tt.wantDup {
				assert.ErrorIs(t, err, domain.ErrDuplicateParty)
				return
			}
			assert.NoError(t, err)
		})
	}

	suppliers, err := s.List(ctx, domain.RoleSupplier)
	require.NoError(t, err)
	assert.Len(t, suppliers, 2)
}

func TestAddValidatesRequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		party domain.Party
	}{
		{name: "blank name", party: domain.Party{Role: domain.RolePIC, Name: "  "}},
		{name: "agent without IC", party: domain.Party{Role: domain.RoleAgent, Name: "Ali"}},
		{name: "supplier without category", party: domain.Party{Role: domain.RoleSupplier, Name: "flour"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newService().Add(context.Background(), tt.party)
			require.Error(t, err)
			assert.NotErrorIs(t, err, domain.ErrDuplicateParty)
		})
	}
}

func TestAddStampsCreationTime(t *testing.T) {
	p, err := newService().Add(context.Background(), domain.Party{Role: domain.RolePIC, Name: " Mei "})
	require.NoError(t, err)
	assert.Equal(t, "Mei", p.Name)
	assert.Equal(t, fixedNow, p.CreatedAt)
}

func TestFindAgent(t *testing.T) {
	ctx := context.Background()
	s := newService()
	_, err := s.Add(ctx, domain.Party{Role: domain.RoleAgent, Name: "Ali", IC: "A123", Rate: decimal.RequireFromString("0.1")})
	require.NoError(t, err)

	agent, ok, err := s.FindAgent(ctx, "a123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ali", agent.Name)
	assert.True(t, agent.Rate.Equal(decimal.RequireFromString("0.1")))

	_, ok, err = s.FindAgent(ctx, "Mei")
	require.NoError(t, err)
	assert.False(t, ok)
}

// MockDirectoryStore fails every call with Err.
type MockDirectoryStore struct {
	Err error
}

func (m *MockDirectoryStore) AppendParty(ctx context.Context, p domain.Party) error {
	return m.Err
}

func (m *MockDirectoryStore) ListParties(ctx context.Context, role domain.Role) ([]domain.Party, error) {
	return nil, m.Err
}

func TestServiceWrapsStoreErrors(t *testing.T) {
	offline := errors.New("sheet offline")
	s := NewService(&MockDirectoryStore{Err: offline}, nil)

	_, err := s.Add(context.Background(), domain.Party{Role: domain.RoleAgent, Name: "Ali", IC: "A1"})
	assert.ErrorIs(t, err, offline)
	_, _, err = s.FindAgent(context.Background(), "Ali")
	assert.ErrorIs(t, err, offline)
}
