// Package cache holds a single most-recent value with a freshness window
// and a hard staleness ceiling.
package cache

import (
	"sync"
	"time"
)

// State classifies a cached value by age.
type State int

const (
	// Miss means nothing has been stored yet (or it was invalidated).
	Miss State = iota
	// Fresh means age < freshFor.
	Fresh
	// Stale means freshFor <= age < maxStale.
	Stale
	// Expired means age >= both windows.
	Expired
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Expired:
		return "expired"
	default:
		return "miss"
	}
}

// Cache is a concurrency-safe single-entry cache.
type Cache[T any] struct {
	mu       sync.RWMutex
	value    T
	storedAt time.Time
	set      bool

	freshFor time.Duration
	maxStale time.Duration
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a cache. A maxStale at or below freshFor disables the stale state.
func New[T any](freshFor, maxStale time.Duration, opts ...Option) *Cache[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{
		freshFor: freshFor,
		maxStale: maxStale,
		now:      o.now,
	}
}

// Get returns the cached value, its age and its state.
func (c *Cache[T]) Get() (T, time.Duration, State) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.set {
		var zero T
		return zero, 0, Miss
	}

	age := c.now().Sub(c.storedAt)
	switch {
	case age < c.freshFor:
		return c.value, age, Fresh
	case age < c.maxStale:
		return c.value, age, Stale
	default:
		return c.value, age, Expired
	}
}

// Put stores v with the current time.
func (c *Cache[T]) Put(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.storedAt = c.now()
	c.set = true
}

// Invalidate drops the cached value.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.set = false
}

// FreshFor returns the freshness window.
func (c *Cache[T]) FreshFor() time.Duration {
	return c.freshFor
}

// MaxStale returns the hard staleness ceiling.
func (c *Cache[T]) MaxStale() time.Duration {
	return c.maxStale
}
