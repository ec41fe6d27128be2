package credstore

import (
	"context"
	"sync"

	"github.com/nexusrun/coreagent/pkg/models"
)

// MemoryStore is an in-memory Store, useful for tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]models.Credential
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]models.Credential)}
}

func (s *MemoryStore) Get(ctx context.Context, providerID string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.data[providerID]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (s *MemoryStore) Set(ctx context.Context, providerID string, cred models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[providerID] = cred
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, providerID)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}
