package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no blob exists under a key.
var ErrNotFound = errors.New("blob not found")

// ErrContentMismatch is returned by WriteOnce when a key already holds
// different bytes.
var ErrContentMismatch = errors.New("blob already written with different content")

// Store is a key/value blob store.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data under key.
	Put(ctx context.Context, key string, data []byte) error

	// Exists reports whether key holds a blob.
	Exists(ctx context.Context, key string) (bool, error)
}
