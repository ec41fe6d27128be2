// Package blobstore implements C1, the key/value blob store that backs
// session persistence and other durable state. It mirrors the storage
// trait used by the Rust reference this runtime was distilled from: a
// flat namespace of opaque byte values addressed by string key, with
// sanitization against path traversal when the backing store is a
// filesystem.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Delete when the key is absent.
// Callers use errors.Is(err, ErrNotFound) to distinguish a missing key
// from a genuine I/O failure.
var ErrNotFound = errors.New("blobstore: key not found")

// Store is a flat key/value blob store.
type Store interface {
	// Put stores value under key, overwriting any existing value.
	Put(ctx context.Context, key string, value []byte) error

	// Get retrieves the value stored under key. Returns ErrNotFound if
	// the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the value stored under key. Returns ErrNotFound if
	// the key does not exist.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix, in no particular
	// order. An empty prefix lists every key.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether key has a stored value.
	Exists(ctx context.Context, key string) (bool, error)
}
