// Package store defines the blob persistence interface for BoyStats.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and local development).
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no blob exists under the key.
var ErrNotFound = errors.New("store: blob not found")

// BlobInfo describes a stored blob without its payload.
type BlobInfo struct {
	Key       string    `json:"key"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BlobStore is a key/blob store. Put replaces any existing blob.
type BlobStore interface {
	// Get returns the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns blobs whose key starts with prefix, newest first.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}
