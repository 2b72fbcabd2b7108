package memory

import (
	"context"
	"fmt"
	"sync"

	"fortuna/internal/admin"
	"fortuna/pkg/platform/sentinel"
)

// Store keeps admin sessions in memory for tests and development.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*admin.Session
}

// New constructs an empty in-memory admin session store.
func New() *Store {
	return &Store{sessions: make(map[string]*admin.Session)}
}

func (s *Store) Create(_ context.Context, session *admin.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *session
	s.sessions[session.Token] = &stored
	return nil
}

func (s *Store) Find(_ context.Context, token string) (*admin.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, fmt.Errorf("admin session not found: %w", sentinel.ErrNotFound)
	}
	out := *session
	return &out, nil
}

func (s *Store) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// Len reports how many sessions exist; test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
