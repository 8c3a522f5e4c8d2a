package cache

import (
	"sync"
	"time"
)

// RemovalCause describes why an entry left the cache.
type RemovalCause uint8

const (
	// CauseExpired means the entry's TTL elapsed.
	CauseExpired RemovalCause = iota + 1
	// CauseReplaced means a Put under the same key displaced the entry
	// before its TTL elapsed.
	CauseReplaced
	// CauseInvalidated means the entry was removed by InvalidateAll or
	// Close.
	CauseInvalidated
)

// String returns a string representation of the RemovalCause.
func (c RemovalCause) String() string {
	switch c {
	case CauseExpired:
		return "expired"
	case CauseReplaced:
		return "replaced"
	case CauseInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// EvictionFunc is called once per physical entry removal. The value is the
// exact instance that was removed, so hooks can undo side registrations
// (e.g. a spatial index entry) for that generation without touching a live
// replacement under the same key.
//
// Hooks are invoked outside the cache lock. They must not call back into
// the cache for the same key.
type EvictionFunc[K comparable, V any] func(key K, value V, cause RemovalCause)

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a thread-safe key/value cache whose entries expire a fixed
// duration after insertion. A Put under an existing key replaces the entry
// and restarts its TTL.
//
// Get never returns an expired entry, even if the sweeper has not
// physically removed it yet.
type TTL[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]ttlEntry[V]

	ttl     time.Duration
	onEvict EvictionFunc[K, V]
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// Option configures a TTL cache.
type Option[K comparable, V any] func(*TTL[K, V])

// WithEvictionFunc registers the eviction hook.
func WithEvictionFunc[K comparable, V any](fn EvictionFunc[K, V]) Option[K, V] {
	return func(c *TTL[K, V]) {
		c.onEvict = fn
	}
}

// withClock overrides the time source. Test use only.
func withClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *TTL[K, V]) {
		c.now = now
	}
}

// NewTTL creates a cache whose entries live for ttl after each (re)insertion
// and starts the background sweeper. sweepInterval <= 0 picks a default of
// half the TTL, floored at 10ms. The caller owns the returned cache and must
// Close it.
func NewTTL[K comparable, V any](ttl, sweepInterval time.Duration, opts ...Option[K, V]) *TTL[K, V] {
	if sweepInterval <= 0 {
		sweepInterval = ttl / 2
	}
	if sweepInterval < 10*time.Millisecond {
		sweepInterval = 10 * time.Millisecond
	}

	c := &TTL[K, V]{
		entries: make(map[K]ttlEntry[V]),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, fn := range opts {
		if fn != nil {
			fn(c)
		}
	}

	go c.sweepLoop(sweepInterval)

	return c
}

// Put inserts or replaces the entry for key, restarting its TTL. If an
// entry was displaced, the eviction hook fires for the displaced instance
// before Put returns.
func (c *TTL[K, V]) Put(key K, value V) {
	now := c.now()

	c.mu.Lock()
	old, existed := c.entries[key]
	c.entries[key] = ttlEntry[V]{value: value, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	if existed {
		cause := CauseReplaced
		if now.After(old.expiresAt) {
			// The old generation was already logically dead.
			cause = CauseExpired
		}
		c.evict(key, old.value, cause)
	}
}

// Get returns the live entry for key. Entries past their TTL are treated as
// absent even when the sweeper has not collected them yet.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Len returns the number of live (unexpired) entries.
func (c *TTL[K, V]) Len() int {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, e := range c.entries {
		if !now.After(e.expiresAt) {
			n++
		}
	}
	return n
}

// InvalidateAll removes every entry, firing the eviction hook for each with
// CauseInvalidated.
func (c *TTL[K, V]) InvalidateAll() {
	c.mu.Lock()
	removed := c.entries
	c.entries = make(map[K]ttlEntry[V])
	c.mu.Unlock()

	for k, e := range removed {
		c.evict(k, e.value, CauseInvalidated)
	}
}

// Close stops the sweeper and invalidates all remaining entries. It is
// idempotent and safe to call concurrently with other operations.
func (c *TTL[K, V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		<-c.done
		c.InvalidateAll()
	})
}

func (c *TTL[K, V]) sweepLoop(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep physically removes expired entries. Deletion under the write lock
// is the linearization point: whichever path deletes an entry owns its
// single hook invocation.
func (c *TTL[K, V]) sweep() {
	now := c.now()

	type expired struct {
		key   K
		value V
	}
	var dead []expired

	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			dead = append(dead, expired{key: k, value: e.value})
		}
	}
	c.mu.Unlock()

	for _, d := range dead {
		c.evict(d.key, d.value, CauseExpired)
	}
}

func (c *TTL[K, V]) evict(key K, value V, cause RemovalCause) {
	if c.onEvict != nil {
		c.onEvict(key, value, cause)
	}
}
