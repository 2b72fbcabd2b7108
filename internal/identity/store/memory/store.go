package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fortuna/internal/identity"
	"fortuna/pkg/domain"
	"fortuna/pkg/platform/sentinel"
)

// Store keeps identities in memory for tests and development.
type Store struct {
	mu         sync.RWMutex
	byID       map[domain.IdentityID]*identity.Identity
	byExternal map[string]domain.IdentityID
}

// New constructs an empty in-memory identity store.
func New() *Store {
	return &Store{
		byID:       make(map[domain.IdentityID]*identity.Identity),
		byExternal: make(map[string]domain.IdentityID),
	}
}

func (s *Store) Create(_ context.Context, ident *identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byExternal[ident.ExternalID]; exists {
		return fmt.Errorf("external id already bound: %w", sentinel.ErrConflict)
	}
	stored := *ident
	s.byID[ident.ID] = &stored
	s.byExternal[ident.ExternalID] = ident.ID
	return nil
}

func (s *Store) FindByID(_ context.Context, id domain.IdentityID) (*identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ident, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("identity not found: %w", sentinel.ErrNotFound)
	}
	out := *ident
	return &out, nil
}

func (s *Store) FindByExternalID(_ context.Context, externalID string) (*identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalID]
	if !ok {
		return nil, fmt.Errorf("identity not found: %w", sentinel.ErrNotFound)
	}
	out := *s.byID[id]
	return &out, nil
}

func (s *Store) AdvanceLastSpin(_ context.Context, id domain.IdentityID, prev *time.Time, spunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("identity not found: %w", sentinel.ErrNotFound)
	}
	if !timesEqual(ident.LastSpinAt, prev) {
		return fmt.Errorf("last spin moved concurrently: %w", sentinel.ErrInvalidState)
	}
	t := spunAt
	ident.LastSpinAt = &t
	return nil
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
