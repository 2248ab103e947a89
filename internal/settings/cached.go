package settings

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	value     string
	found     bool
	expiresAt time.Time
}

// Cached is a TTL decorator over a Source. Misses are cached like hits;
// backend errors are not.
type Cached struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewCached(src Source, ttl time.Duration) *Cached {
	return &Cached{
		src:     src,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cached) Lookup(ctx context.Context, key string) (string, bool, error) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Before(e.expiresAt) {
		return e.value, e.found, nil
	}

	v, found, err := c.src.Lookup(ctx, key)
	if err != nil {
		return "", false, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{value: v, found: found, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return v, found, nil
}

// Invalidate drops every cached entry.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
