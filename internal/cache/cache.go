// Package cache provides a small concurrency-safe TTL cache. Unlike a
// plain expiring cache, entries are kept past their TTL and stay reachable
// through GetStale; the rate converter relies on that to reuse the last
// known rates when a refresh fails.
package cache

import (
	"sync"
	"time"
)

type TTLCache[T any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]entry[T]
}

type entry[T any] struct {
	data     T
	storedAt time.Time
}

func NewTTLCache[T any](ttl time.Duration) *TTLCache[T] {
	return &TTLCache[T]{
		ttl:   ttl,
		items: make(map[string]entry[T]),
	}
}

// Get returns the value for key only while it is still fresh.
func (c *TTLCache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if time.Since(e.storedAt) > c.ttl {
		return zero, false
	}
	return e.data, true
}

// GetStale returns the value for key regardless of age, along with when it
// was stored.
func (c *TTLCache[T]) GetStale(key string) (T, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	e, ok := c.items[key]
	if !ok {
		return zero, time.Time{}, false
	}
	return e.data, e.storedAt, true
}

func (c *TTLCache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[T]{data: data, storedAt: time.Now()}
}

func (c *TTLCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *TTLCache[T]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
