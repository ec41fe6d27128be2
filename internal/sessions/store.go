// Package sessions implements C8, the session store: a persistent
// conversation transcript keyed by caller-chosen idempotency key, backed
// either by an in-memory map (tests, local runs) or by internal/blobstore
// (durable single-node storage).
package sessions

import (
	"context"

	"github.com/nexusrun/coreagent/pkg/models"
)

// Store is the interface for session persistence: session metadata plus
// its ordered message transcript.
type Store interface {
	// Create persists a new session, assigning ID/CreatedAt/UpdatedAt if unset.
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error

	// GetOrCreate looks up a session by its caller-chosen key, creating one
	// bound to provider/model if none exists yet. Concurrent calls with the
	// same key must not create two sessions.
	GetOrCreate(ctx context.Context, key, provider, model string) (*models.Session, error)
	List(ctx context.Context, opts ListOptions) ([]*models.Session, error)

	// ContinueLatest returns the most recently updated session, or nil if
	// none exist.
	ContinueLatest(ctx context.Context) (*models.Session, error)

	// AppendMessage adds msg to sessionID's transcript, assigning ID/CreatedAt
	// if unset.
	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
}

// ListOptions configures session listing.
type ListOptions struct {
	Provider string
	Limit    int
	Offset   int
}
