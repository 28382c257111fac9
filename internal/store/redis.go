package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore wraps a primary BlobStore (PostgreSQL) with a Redis
// read-through cache. Writes go to the primary store and refresh the cache;
// reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary BlobStore
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary BlobStore, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through ---

func (s *CachedStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.primary.Put(ctx, key, data); err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, blobKey(key), data, s.ttl).Err(); err != nil {
		// A stale entry would outlive the write; drop it instead.
		slog.Warn("redis set failed, invalidating", "key", key, "err", err)
		s.rdb.Del(ctx, blobKey(key))
	}
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, key string) error {
	if err := s.primary.Delete(ctx, key); err != nil {
		return err
	}
	s.rdb.Del(ctx, blobKey(key))
	return nil
}

// --- Read-through ---

func (s *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, blobKey(key)).Bytes()
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, redis.Nil) {
		slog.Warn("redis get failed, reading primary", "key", key, "err", err)
	}

	// Cache miss: read from primary.
	data, err = s.primary.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.rdb.Set(ctx, blobKey(key), data, s.ttl)
	return data, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) List(ctx context.Context, prefix string) ([]BlobInfo, error) {
	return s.primary.List(ctx, prefix)
}

func blobKey(key string) string { return fmt.Sprintf("boystats:blob:%s", key) }
