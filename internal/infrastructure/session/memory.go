// Package session keeps the signed-in session between launches.
package session

import (
	"context"
	"sync"

	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/shared"
)

// MemoryStore keeps the session for the lifetime of the process
type MemoryStore struct {
	mu      sync.RWMutex
	session *identity.Session
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns a copy of the stored session
func (s *MemoryStore) Get(_ context.Context) (*identity.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, shared.ErrNoSession
	}
	cp := *s.session
	return &cp, nil
}

// Set replaces the stored session
func (s *MemoryStore) Set(_ context.Context, session *identity.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	cp := *session
	s.mu.Lock()
	s.session = &cp
	s.mu.Unlock()
	return nil
}

// Clear forgets the session
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	return nil
}

var _ identity.SessionStore = (*MemoryStore)(nil)
