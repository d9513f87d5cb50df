// Package credentials persists the access/refresh pair. Stores never
// inspect token contents.
package credentials

import (
	"context"
	"sync"

	"pamana/notes/internal/model"
)

// Store is the only shared mutable resource of the client. Set writes the
// non-empty fields of the pair in one step so readers never observe half of
// a renewal.
type Store interface {
	Set(ctx context.Context, cred model.Credential) error
	Get(ctx context.Context) (model.Credential, bool, error)
	Clear(ctx context.Context) error
}

type MemoryStore struct {
	mu   sync.RWMutex
	cred model.Credential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Set(_ context.Context, cred model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = merge(s.cred, cred)
	return nil
}

func (s *MemoryStore) Get(_ context.Context) (model.Credential, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, !s.cred.Empty(), nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = model.Credential{}
	return nil
}

func merge(current, update model.Credential) model.Credential {
	if update.Access != "" {
		current.Access = update.Access
	}
	if update.Refresh != "" {
		current.Refresh = update.Refresh
	}
	return current
}
