package collection

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTLCache holds values for a fixed time to live. An entry older than the TTL is
// treated as absent. A TTL of zero or less disables caching.
type TTLCache[K comparable, V any] struct {
	ttl     time.Duration
	now     func() time.Time
	mux     sync.Mutex
	entries map[K]entry[V]
}

// NewTTLCache creates a cache; now defaults to time.Now.
func NewTTLCache[K comparable, V any](ttl time.Duration, now func() time.Time) *TTLCache[K, V] {
	if now == nil {
		now = time.Now
	}
	return &TTLCache[K, V]{ttl: ttl, now: now, entries: map[K]entry[V]{}}
}

// Enabled reports whether values are retained at all.
func (c *TTLCache[K, V]) Enabled() bool {
	return c.ttl > 0
}

// Get returns a fresh value and its age.
func (c *TTLCache[K, V]) Get(k K) (V, time.Duration, bool) {
	var zero V
	if !c.Enabled() {
		return zero, 0, false
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	e, ok := c.entries[k]
	if !ok {
		return zero, 0, false
	}
	age := c.now().Sub(e.storedAt)
	if age > c.ttl {
		delete(c.entries, k)
		return zero, 0, false
	}
	return e.value, age, true
}

// Put stores v under k stamped with the current time.
func (c *TTLCache[K, V]) Put(k K, v V) {
	if !c.Enabled() {
		return
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	c.entries[k] = entry[V]{value: v, storedAt: c.now()}
}

// Delete drops k.
func (c *TTLCache[K, V]) Delete(k K) {
	c.mux.Lock()
	defer c.mux.Unlock()
	delete(c.entries, k)
}
