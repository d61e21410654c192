// Package modelcache is a TTL-keyed in-memory cache for model metadata.
//
// The cache optimizes steady-state reads. Concurrent callers racing on a
// cold key may each invoke the fetch function; the last writer wins, and TTL
// bounds how stale any observed value can be.
package modelcache

import (
	"context"
	"sync"
	"time"

	"github.com/helixcode-ai/hx-model-manager/internal/metrics"
)

// Well-known key prefixes used by the coordinator when invalidating.
const (
	KeyModelList = "models:list"
	KeyModelInfo = "models:info:" // + model name
	KeyLanguage  = "language:"    // + content hash
	KeyTaskModel = "task-model:"  // + task name
)

// FetchFunc computes a value on a cache miss.
type FetchFunc func(ctx context.Context) (interface{}, error)

type entry struct {
	value  interface{}
	expiry time.Time
}

// Cache holds TTL-bounded metadata entries.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	// now is swappable for tests.
	now func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// GetOrFetch returns the cached value for key when present and fresh;
// otherwise it invokes fetch, stores the result with expiry now+ttl, and
// returns it. A read past expiry is a miss.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (interface{}, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(key, value, ttl)
	return value, nil
}

// Get returns the cached value when present and fresh. A read past expiry
// is a miss and evicts the entry.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().After(e.expiry) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// refreshed the key since the read.
		if cur, still := c.entries[key]; still && c.now().After(cur.expiry) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		ok = false
	}
	if !ok {
		metrics.ObserveCacheLookup(false)
		return nil, false
	}
	metrics.ObserveCacheLookup(true)
	return e.value, true
}

// Set stores value under key with a fresh expiry. Entries that expired and
// were never read again are swept here, so the map stays bounded by the
// live working set even for one-shot keys such as content hashes.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	now := c.now()
	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.expiry) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry{
		value:  value,
		expiry: now.Add(ttl),
	}
	c.mu.Unlock()
}

// Invalidate removes one entry; the next read is a guaranteed miss.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidatePrefix removes every entry whose key starts with prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// InvalidateAll clears the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len reports the number of entries currently stored.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
