package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMaxEntries = 500

// MemoryStore is a process-local bounded LRU with per-store TTL.
type MemoryStore struct {
	lru *expirable.LRU[string, Entry]
}

func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &MemoryStore{lru: expirable.NewLRU[string, Entry](maxEntries, nil, ttl)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool) {
	return s.lru.Get(key)
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry, _ time.Duration) {
	s.lru.Add(key, entry)
}

func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.lru.Remove(key)
}

func (s *MemoryStore) Clear(_ context.Context) {
	s.lru.Purge()
}

func (s *MemoryStore) Len(_ context.Context) int {
	return s.lru.Len()
}
