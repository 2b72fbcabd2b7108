package memory

import (
	"context"
	"sync"

	"fortuna/internal/audit"
)

// Store keeps audit events in memory for tests and development.
type Store struct {
	mu     sync.RWMutex
	events []audit.Event
}

// New constructs an empty in-memory audit store.
func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a snapshot of everything appended so far.
func (s *Store) Events() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}
