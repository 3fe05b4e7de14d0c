// Package cache stores the last aggregated response per venue. It is a pure
// cache: entries expire by TTL or explicit invalidation and never survive a
// restart. The backing store is pluggable; when a remote store misbehaves the
// cache silently degrades to the in-process store rather than failing the
// caller.
package cache

import (
	"context"
	"time"

	"github.com/LAG-4/cafefinder/pkg/offers"
)

// Entry is the cached aggregation result for one venue.
type Entry struct {
	Offers          []offers.Offer `json:"offers"`
	RefreshedAt     int64          `json:"refreshedAt"` // unix ms
	LastRefreshedAt string         `json:"lastRefreshedAt"`
}

// NewEntry stamps offers with the current wall clock.
func NewEntry(ranked []offers.Offer, now time.Time) Entry {
	return Entry{
		Offers:          ranked,
		RefreshedAt:     now.UnixMilli(),
		LastRefreshedAt: now.UTC().Format(time.RFC3339),
	}
}

// Store is one cache backend, keyed by venue slug.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
	Len(ctx context.Context) int
}

const DefaultTTL = 30 * time.Minute

// Cache layers an optional remote store over the local one. Writes go to
// both; reads prefer remote and fall back locally.
type Cache struct {
	local      Store
	remote     Store
	ttl        time.Duration
	maxEntries int
}

// Option configures a Cache.
type Option func(*Cache)

func WithRemote(remote Store) Option {
	return func(c *Cache) { c.remote = remote }
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{ttl: DefaultTTL, maxEntries: defaultMaxEntries}
	for _, opt := range opts {
		opt(c)
	}
	// The local store is built last so ttl and size options apply to it.
	c.local = NewMemoryStore(c.maxEntries, c.ttl)
	return c
}

func (c *Cache) Get(ctx context.Context, key string) (Entry, bool) {
	if c.remote != nil {
		if e, ok := c.remote.Get(ctx, key); ok {
			return e, true
		}
	}
	return c.local.Get(ctx, key)
}

func (c *Cache) Set(ctx context.Context, key string, entry Entry) {
	if c.remote != nil {
		c.remote.Set(ctx, key, entry, c.ttl)
	}
	c.local.Set(ctx, key, entry, c.ttl)
}

func (c *Cache) Delete(ctx context.Context, key string) {
	if c.remote != nil {
		c.remote.Delete(ctx, key)
	}
	c.local.Delete(ctx, key)
}

func (c *Cache) Clear(ctx context.Context) {
	if c.remote != nil {
		c.remote.Clear(ctx)
	}
	c.local.Clear(ctx)
}

// Stats reports local occupancy for the diagnostics endpoint.
type CacheStats struct {
	Size   int  `json:"size"`
	Max    int  `json:"max"`
	Remote bool `json:"remote"`
}

func (c *Cache) Stats(ctx context.Context) CacheStats {
	return CacheStats{
		Size:   c.local.Len(ctx),
		Max:    c.maxEntries,
		Remote: c.remote != nil,
	}
}
