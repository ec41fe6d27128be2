package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexusrun/coreagent/internal/blobstore"
	"github.com/nexusrun/coreagent/pkg/models"
)

// document is the single blob stored per session: metadata plus its full
// message transcript, serialized as one JSON value.
type document struct {
	Session  models.Session   `json:"session"`
	Messages []*models.Message `json:"messages"`
}

// BlobStore implements Store over C1, one blob per session keyed
// "session:<session_id>". A second "session-key:<key>" blob maps a
// caller-chosen idempotency key to a session id for GetOrCreate.
type BlobStore struct {
	blobs blobstore.Store

	// keyMu serializes GetOrCreate per key so two concurrent callers with
	// the same key can't each create a session.
	keyMu sync.Mutex
}

// NewBlobStore creates a Store backed by blobs.
func NewBlobStore(blobs blobstore.Store) *BlobStore {
	return &BlobStore{blobs: blobs}
}

func sessionBlobKey(id string) string { return "session:" + id }
func sessionKeyBlobKey(key string) string { return "session-key:" + key }

func (s *BlobStore) load(ctx context.Context, id string) (*document, error) {
	data, err := s.blobs.Get(ctx, sessionBlobKey(id))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, errors.New("session not found")
		}
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("sessions: decode %s: %w", id, err)
	}
	return &doc, nil
}

func (s *BlobStore) save(ctx context.Context, doc *document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("sessions: encode %s: %w", doc.Session.ID, err)
	}
	return s.blobs.Put(ctx, sessionBlobKey(doc.Session.ID), data)
}

func (s *BlobStore) Create(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = session.CreatedAt

	doc := &document{Session: *session}
	if err := s.save(ctx, doc); err != nil {
		return err
	}
	if session.Key != "" {
		if err := s.blobs.Put(ctx, sessionKeyBlobKey(session.Key), []byte(session.ID)); err != nil {
			return fmt.Errorf("sessions: index key %s: %w", session.Key, err)
		}
	}
	return nil
}

func (s *BlobStore) Get(ctx context.Context, id string) (*models.Session, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	out := doc.Session
	return &out, nil
}

func (s *BlobStore) Update(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	existing, err := s.load(ctx, session.ID)
	if err != nil {
		return err
	}
	updated := *session
	updated.CreatedAt = existing.Session.CreatedAt
	updated.UpdatedAt = time.Now()
	existing.Session = updated
	return s.save(ctx, existing)
}

func (s *BlobStore) Delete(ctx context.Context, id string) error {
	doc, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, sessionBlobKey(id)); err != nil {
		return err
	}
	if doc.Session.Key != "" {
		_ = s.blobs.Delete(ctx, sessionKeyBlobKey(doc.Session.Key))
	}
	return nil
}

func (s *BlobStore) GetOrCreate(ctx context.Context, key, provider, model string) (*models.Session, error) {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	if idBytes, err := s.blobs.Get(ctx, sessionKeyBlobKey(key)); err == nil {
		if sess, err := s.Get(ctx, string(idBytes)); err == nil {
			return sess, nil
		}
	}

	session := &models.Session{Key: key, Provider: provider, Model: model}
	if err := s.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *BlobStore) List(ctx context.Context, opts ListOptions) ([]*models.Session, error) {
	keys, err := s.blobs.List(ctx, "session:")
	if err != nil {
		return nil, err
	}
	out := make([]*models.Session, 0, len(keys))
	for _, k := range keys {
		id := k[len("session:"):]
		sess, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		if opts.Provider != "" && sess.Provider != opts.Provider {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	start := opts.Offset
	if start < 0 {
		start = 0
	}
	end := len(out)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	if start > len(out) {
		return []*models.Session{}, nil
	}
	return out[start:end], nil
}

// ContinueLatest returns the most recently updated session, or nil if none
// exist.
func (s *BlobStore) ContinueLatest(ctx context.Context) (*models.Session, error) {
	sessions, err := s.List(ctx, ListOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}

func (s *BlobStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	doc, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	doc.Messages = append(doc.Messages, msg)
	doc.Session.UpdatedAt = time.Now()
	return s.save(ctx, doc)
}

func (s *BlobStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	doc, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	messages := doc.Messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}
