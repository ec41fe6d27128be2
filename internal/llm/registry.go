package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nexusrun/coreagent/internal/authengine"
)

// Registry holds the set of configured Provider adapters, keyed by
// provider ID. Unlike the reference implementation's registry (which
// constructs its own storage internally and later hits an incompatible-
// trait dead end trying to hand back a lazily-instantiated model), this
// registry always takes an explicit *authengine.Manager at construction
// and only ever returns a Provider that fully implements this package's
// own Provider interface — there is no second, narrower model type to
// reconcile with.
type Registry struct {
	auth *authengine.Manager

	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty Registry backed by auth for credential
// resolution.
func NewRegistry(auth *authengine.Manager) *Registry {
	return &Registry{
		auth:      auth,
		providers: make(map[string]Provider),
	}
}

// Register adds a provider adapter under its own Name().
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get looks up a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("llm: provider not registered: %s", providerID)
	}
	return p, nil
}

// List returns the IDs of all registered providers.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	return ids
}

// ParseModelString splits a "provider/model" string into its parts. If
// modelStr has no "/" it is returned whole as the model with an empty
// provider, letting the caller fall back to a configured default
// provider.
func ParseModelString(modelStr string) (providerID, modelID string) {
	if idx := strings.Index(modelStr, "/"); idx >= 0 {
		return modelStr[:idx], modelStr[idx+1:]
	}
	return "", modelStr
}

// Resolve looks up the provider for a "provider/model" string, falling
// back to defaultProvider when modelStr carries no provider prefix.
func (r *Registry) Resolve(modelStr, defaultProvider string) (Provider, string, error) {
	providerID, modelID := ParseModelString(modelStr)
	if providerID == "" {
		providerID = defaultProvider
	}
	if providerID == "" {
		return nil, "", fmt.Errorf("llm: no provider specified and no default configured")
	}
	p, err := r.Get(providerID)
	if err != nil {
		return nil, "", err
	}
	return p, modelID, nil
}

// Available returns the IDs of registered providers that currently have
// usable credentials.
func (r *Registry) Available(ctx context.Context) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	available := make([]string, 0, len(ids))
	for _, id := range ids {
		if r.auth == nil || r.auth.HasCredentials(ctx, id) {
			available = append(available, id)
		}
	}
	return available
}
