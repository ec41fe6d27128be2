package authengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexusrun/coreagent/internal/credstore"
	"github.com/nexusrun/coreagent/pkg/models"
)

// Manager dispatches credential requests to a per-provider Engine when one
// is registered, and falls through to the credential store directly
// otherwise. Registering an engine is how a provider opts into refresh
// behavior (PKCE, device-code); an unregistered provider is still usable
// with a plain stored API key.
type Manager struct {
	store credstore.Store

	mu       sync.RWMutex
	engines  map[string]Engine
}

// NewManager creates a Manager backed by store.
func NewManager(store credstore.Store) *Manager {
	return &Manager{
		store:   store,
		engines: make(map[string]Engine),
	}
}

// Register adds an Engine for its ProviderID, replacing any previously
// registered engine for that provider.
func (m *Manager) Register(engine Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engines[engine.ProviderID()] = engine
}

func (m *Manager) engine(providerID string) (Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.engines[providerID]
	return e, ok
}

// Credentials returns the credential for providerID, using its registered
// engine (which may refresh an expired token) if one exists, otherwise
// reading directly from the store.
func (m *Manager) Credentials(ctx context.Context, providerID string) (*models.Credential, error) {
	if engine, ok := m.engine(providerID); ok {
		if engine.HasCredentials(ctx) {
			return engine.Credentials(ctx)
		}
	}
	cred, err := m.store.Get(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("authengine: get %s credentials: %w", providerID, err)
	}
	if cred == nil {
		return nil, ErrNoCredentials
	}
	return cred, nil
}

// SetCredentials stores cred for providerID, routing through the
// registered engine if one exists so engine-specific bookkeeping runs, and
// always persisting to the backing store as well.
func (m *Manager) SetCredentials(ctx context.Context, providerID string, cred models.Credential) error {
	if engine, ok := m.engine(providerID); ok {
		if err := engine.SetCredentials(ctx, cred); err != nil {
			return err
		}
	}
	return m.store.Set(ctx, providerID, cred)
}

// RemoveCredentials deletes stored credentials for providerID.
func (m *Manager) RemoveCredentials(ctx context.Context, providerID string) error {
	if engine, ok := m.engine(providerID); ok {
		if err := engine.RemoveCredentials(ctx); err != nil {
			return err
		}
	}
	return m.store.Remove(ctx, providerID)
}

// ListCredentials returns all provider IDs with stored credentials.
func (m *Manager) ListCredentials(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// HasCredentials reports whether providerID has a usable credential,
// checking its registered engine first and falling back to the store.
func (m *Manager) HasCredentials(ctx context.Context, providerID string) bool {
	if engine, ok := m.engine(providerID); ok {
		if engine.HasCredentials(ctx) {
			return true
		}
	}
	cred, err := m.store.Get(ctx, providerID)
	return err == nil && cred != nil
}
