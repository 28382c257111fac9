package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memBlob struct {
	data      []byte
	updatedAt time.Time
}

// MemoryStore implements BlobStore with an in-memory map. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memBlob
	now   func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string]memBlob),
		now:   time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b.data...), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	s.blobs[key] = memBlob{data: append([]byte(nil), data...), updatedAt: s.now()}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []BlobInfo
	for key, b := range s.blobs {
		if strings.HasPrefix(key, prefix) {
			out = append(out, BlobInfo{Key: key, Size: len(b.data), UpdatedAt: b.updatedAt})
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(infos []BlobInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].UpdatedAt.Equal(infos[j].UpdatedAt) {
			return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
		}
		return infos[i].Key > infos[j].Key
	})
}
