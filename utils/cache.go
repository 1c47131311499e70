package utils

import (
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	value    V
	storedAt time.Time
}

// TTLCache memoizes values per key for a fixed time window. An entry older
// than TTL is treated as absent and recomputed on the next lookup.
type TTLCache[K comparable, V any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[K]cacheEntry[V]
}

// NewTTLCache creates an empty cache using the wall clock.
func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[K]cacheEntry[V]),
	}
}

// WithClock replaces the time source. Used by tests.
func (c *TTLCache[K, V]) WithClock(now func() time.Time) *TTLCache[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// GetOrCompute returns the cached value or calls compute. The result is
// stored only when compute reports it as storable. The boolean reports
// whether the value came from the cache. compute runs with the cache lock held.
func (c *TTLCache[K, V]) GetOrCompute(key K, compute func() (V, bool)) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.lookup(key); ok {
		return v, true
	}
	v, store := compute()
	if store {
		c.entries[key] = cacheEntry[V]{value: v, storedAt: c.now()}
	}
	return v, false
}

// Purge drops every entry.
func (c *TTLCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]cacheEntry[V])
}

func (c *TTLCache[K, V]) lookup(key K) (V, bool) {
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}
