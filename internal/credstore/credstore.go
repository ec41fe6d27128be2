// Package credstore implements C2, the credential store: a single JSON
// document keyed by provider ID, persisted atomically to
// $HOME/.<app>/auth.json with owner-only permissions. A missing file reads
// as an empty store rather than an error.
package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nexusrun/coreagent/pkg/models"
)

// Store manages per-provider credentials.
type Store interface {
	Get(ctx context.Context, providerID string) (*models.Credential, error)
	Set(ctx context.Context, providerID string, cred models.Credential) error
	Remove(ctx context.Context, providerID string) error
	List(ctx context.Context) ([]string, error)
}

type document struct {
	Credentials map[string]models.Credential `json:"credentials"`
}

// FileStore is a Store backed by a single JSON file.
type FileStore struct {
	path string

	// mu serializes read-modify-write cycles against the file; the file
	// itself is also the source of truth across process restarts.
	mu sync.Mutex
}

// NewFileStore creates a FileStore persisting to path. The parent directory
// is created lazily on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns $HOME/.<app>/auth.json.
func DefaultPath(app string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("credstore: resolve home directory: %w", err)
	}
	return filepath.Join(home, "."+app, "auth.json"), nil
}

func (s *FileStore) load() (document, error) {
	doc := document{Credentials: make(map[string]models.Credential)}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("credstore: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("credstore: decode %s: %w", s.path, err)
	}
	if doc.Credentials == nil {
		doc.Credentials = make(map[string]models.Credential)
	}
	return doc, nil
}

func (s *FileStore) save(doc document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("credstore: create directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("credstore: encode: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("credstore: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("credstore: commit: %w", err)
	}
	return os.Chmod(s.path, 0o600)
}

func (s *FileStore) Get(ctx context.Context, providerID string) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	cred, ok := doc.Credentials[providerID]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (s *FileStore) Set(ctx context.Context, providerID string, cred models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Credentials[providerID] = cred
	return s.save(doc)
}

func (s *FileStore) Remove(ctx context.Context, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Credentials[providerID]; !ok {
		return nil
	}
	delete(doc.Credentials, providerID)
	return s.save(doc)
}

func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(doc.Credentials))
	for id := range doc.Credentials {
		ids = append(ids, id)
	}
	return ids, nil
}
