// Package authengine implements C3, the per-provider authentication
// engines: API-key passthrough, Anthropic-style PKCE OAuth, and
// device-code OAuth (GitHub Copilot style). A Manager registers one engine
// per provider and falls through to the credential store directly when no
// engine is registered for a provider ID.
package authengine

import (
	"context"
	"errors"

	"github.com/nexusrun/coreagent/pkg/models"
)

// ErrNoCredentials is returned when a provider has no stored credentials
// and no interactive flow has produced any.
var ErrNoCredentials = errors.New("authengine: no credentials found")

// Engine knows how to obtain and refresh credentials for one provider.
type Engine interface {
	// ProviderID identifies the provider this engine authenticates.
	ProviderID() string

	// Credentials returns a valid credential, refreshing it first if it
	// has expired and a refresh token is available.
	Credentials(ctx context.Context) (*models.Credential, error)

	// SetCredentials stores new credentials for this provider.
	SetCredentials(ctx context.Context, cred models.Credential) error

	// RemoveCredentials deletes stored credentials for this provider.
	RemoveCredentials(ctx context.Context) error

	// HasCredentials reports whether any credential is currently stored.
	HasCredentials(ctx context.Context) bool
}
