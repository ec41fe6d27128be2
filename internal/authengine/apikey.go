package authengine

import (
	"context"
	"fmt"

	"github.com/nexusrun/coreagent/internal/credstore"
	"github.com/nexusrun/coreagent/pkg/models"
)

// APIKeyEngine is a pure passthrough to the credential store: it never
// refreshes or derives a credential, it just reads/writes one ApiKey
// variant per provider.
type APIKeyEngine struct {
	providerID string
	store      credstore.Store
}

// NewAPIKeyEngine creates an engine that stores a static API key for
// providerID in store.
func NewAPIKeyEngine(providerID string, store credstore.Store) *APIKeyEngine {
	return &APIKeyEngine{providerID: providerID, store: store}
}

func (e *APIKeyEngine) ProviderID() string { return e.providerID }

func (e *APIKeyEngine) Credentials(ctx context.Context) (*models.Credential, error) {
	cred, err := e.store.Get(ctx, e.providerID)
	if err != nil {
		return nil, fmt.Errorf("authengine: get %s credentials: %w", e.providerID, err)
	}
	if cred == nil {
		return nil, ErrNoCredentials
	}
	return cred, nil
}

func (e *APIKeyEngine) SetCredentials(ctx context.Context, cred models.Credential) error {
	cred.Type = models.CredentialAPIKey
	return e.store.Set(ctx, e.providerID, cred)
}

func (e *APIKeyEngine) RemoveCredentials(ctx context.Context) error {
	return e.store.Remove(ctx, e.providerID)
}

func (e *APIKeyEngine) HasCredentials(ctx context.Context) bool {
	cred, err := e.store.Get(ctx, e.providerID)
	return err == nil && cred != nil
}
