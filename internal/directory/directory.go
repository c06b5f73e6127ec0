// Package directory manages the master data behind sales and purchasing:
// persons in charge, agents with their commission rate, and suppliers.
package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/store"
)

// Service validates new entries and rejects duplicates before they reach
// the store.
type Service struct {
	store store.DirectoryStore
	now   func() time.Time

	// mu serializes the list-then-append of Add.
	mu sync.Mutex
}

// NewService creates a service over s. A nil now uses time.Now.
func NewService(s store.DirectoryStore, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: s, now: now}
}

// Add registers p. Person and agent names are unique ignoring case, and so
// are agent ICs; suppliers may repeat.
func (s *Service) Add(ctx context.Context, p domain.Party) (domain.Party, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.IC = strings.TrimSpace(p.IC)
	if p.Name == "" {
		return domain.Party{}, fmt.Errorf("Add: %s name is required", p.Role)
	}
	if p.Role == domain.RoleAgent && p.IC == "" {
		return domain.Party{}, fmt.Errorf("Add: agent IC is required")
	}
	if p.Role == domain.RoleSupplier && p.Category == "" {
		return domain.Party{}, fmt.Errorf("Add: supplier category is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Role != domain.RoleSupplier {
		existing, err := s.store.ListParties(ctx, p.Role)
		if err != nil {
			return domain.Party{}, fmt.Errorf("Add: listing %ss: %w", p.Role, err)
		}
		for _, e := range existing {
			if e.Matches(p.Name) || (p.IC != "" && e.Matches(p.IC)) {
				return domain.Party{}, fmt.Errorf("Add: %s %q: %w", p.Role, p.Name, domain.ErrDuplicateParty)
			}
		}
	}

	p.CreatedAt = s.now()
	if err := s.store.AppendParty(ctx, p); err != nil {
		return domain.Party{}, fmt.Errorf("Add: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("role", p.Role.String()).Str("name", p.Name).Msg("party registered")
	return p, nil
}

// List returns every entry of role in registration order.
func (s *Service) List(ctx context.Context, role domain.Role) ([]domain.Party, error) {
	parties, err := s.store.ListParties(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return parties, nil
}

// FindAgent implements store.AgentFinder.
func (s *Service) FindAgent(ctx context.Context, nameOrIC string) (domain.Party, bool, error) {
	agents, err := s.List(ctx, domain.RoleAgent)
	if err != nil {
		return domain.Party{}, false, fmt.Errorf("FindAgent: %w", err)
	}
	for _, a := range agents {
		if a.Matches(nameOrIC) {
			return a, true, nil
		}
	}
	return domain.Party{}, false, nil
}

var _ store.AgentFinder = (*Service)(nil)
