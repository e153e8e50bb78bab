package quotes

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultCacheSize bounds the number of cached lookups.
const DefaultCacheSize = 100_000

type cacheEntry struct {
	price float64
	ok    bool
}

// Cache memoizes lookups against an underlying Source, including misses.
// Entries are evicted first-in first-out once size is reached. A cache over a
// source that keeps changing, like a Table fed live, must be Reset between
// reads that should see the new quotes.
// It is the only quote structure shared between parallel runs and is safe
// for concurrent reads and writes.
type Cache struct {
	src  Source
	size int

	mu      sync.RWMutex
	entries map[string]cacheEntry
	order   []string // insertion order ring
	next    int

	hits   atomic.Int64
	misses atomic.Int64
}

var _ Source = (*Cache)(nil)

// NewCache wraps src with a bounded cache. size <= 0 uses DefaultCacheSize.
func NewCache(src Source, size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		src:     src,
		size:    size,
		entries: make(map[string]cacheEntry, size),
		order:   make([]string, 0, size),
	}
}

// PriceAt implements Source.
func (c *Cache) PriceAt(ctx context.Context, tokenID, date string) (float64, bool) {
	key := tokenID + "|" + date

	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()
	if found {
		c.hits.Add(1)
		return e.price, e.ok
	}

	c.misses.Add(1)
	price, ok := c.src.PriceAt(ctx, tokenID, date)

	c.mu.Lock()
	c.put(key, cacheEntry{price: price, ok: ok})
	c.mu.Unlock()

	return price, ok
}

// put must be called with mu held.
func (c *Cache) put(key string, e cacheEntry) {
	if _, exists := c.entries[key]; exists {
		c.entries[key] = e
		return
	}
	if len(c.order) < c.size {
		c.order = append(c.order, key)
	} else {
		delete(c.entries, c.order[c.next])
		c.order[c.next] = key
		c.next = (c.next + 1) % c.size
	}
	c.entries[key] = e
}

// Reset drops every cached lookup. Hit and miss counts are kept.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.order = c.order[:0]
	c.next = 0
}

// Len returns the number of cached lookups.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
