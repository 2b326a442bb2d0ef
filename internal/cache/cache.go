// Package cache provides an in-memory TTL cache keyed by comparable keys.
// Entries carry their own expiry; a stale entry reads as a miss.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a concurrency-safe map with per-entry TTL. The clock is injectable
// for tests; the zero value is not usable, construct with New.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	now     func() time.Time
}

func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]entry[V]),
		now:     time.Now,
	}
}

// NewWithClock constructs a cache using the given clock. Test hook.
func NewWithClock[K comparable, V any](now func() time.Time) *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]entry[V]),
		now:     now,
	}
}

// Get returns the cached value if present and not yet expired. An entry whose
// lifetime has elapsed reads as a miss; it is left for Sweep to reclaim, so
// concurrent readers never observe a half-deleted entry.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for ttl. An existing entry is overwritten
// unconditionally, expiry included. Last write wins.
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge removes all entries.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Sweep removes every expired entry and returns how many were reclaimed.
// Intended to run on a background ticker.
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
