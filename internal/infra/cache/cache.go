package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mcpod/internal/domain"
	"mcpod/internal/infra/telemetry"
)

// FetchFunc performs the expensive lookup on a cache miss. It is supplied by
// the caller per GetOrFetch invocation and is never retried by the cache.
type FetchFunc[T any] func(ctx context.Context) (T, error)

type entry[T any] struct {
	value    T
	storedAt time.Time
	ttl      time.Duration
}

func (e entry[T]) expired(now time.Time) bool {
	if e.ttl == 0 {
		return false
	}
	return now.Sub(e.storedAt) > e.ttl
}

// Cache is a string-keyed TTL cache for one entity class. Concurrent misses
// on the same key are coalesced into a single fetch; failed fetches are
// never stored.
type Cache[T any] struct {
	namespace string
	logger    *zap.Logger
	metrics   domain.Metrics
	now       func() time.Time
	storeIf   func(T) bool

	mu      sync.RWMutex
	entries map[string]entry[T]
	flight  singleflight.Group
}

type Options[T any] struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
	// Now overrides the clock, for tests.
	Now func() time.Time
	// StoreIf skips storing values the predicate rejects (e.g. empty
	// prompts); the value is still returned to the caller.
	StoreIf func(T) bool
}

func New[T any](namespace string, opts Options[T]) *Cache[T] {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{
		namespace: namespace,
		logger:    logger.Named("cache").With(telemetry.NamespaceField(namespace)),
		metrics:   metrics,
		now:       now,
		storeIf:   opts.StoreIf,
		entries:   make(map[string]entry[T]),
	}
}

// GetOrFetch returns the cached value for key when fresh, otherwise invokes
// fetch exactly once across all concurrent callers of the same key. A ttl of
// 0 marks the stored entry as never expiring.
func (c *Cache[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[T]) (T, error) {
	if value, ok := c.lookup(key); ok {
		c.metrics.ObserveCacheLookup(c.namespace, true)
		c.logger.Debug("cache hit", telemetry.EventField(telemetry.EventCacheHit), telemetry.CacheKeyField(key))
		return value, nil
	}

	c.metrics.ObserveCacheLookup(c.namespace, false)
	c.logger.Debug("cache miss", telemetry.EventField(telemetry.EventCacheMiss), telemetry.CacheKeyField(key))

	result, err, _ := c.flight.Do(key, func() (any, error) {
		// Another caller may have completed the fetch between our lookup
		// and joining the flight.
		if value, ok := c.lookup(key); ok {
			return value, nil
		}
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if c.storeIf == nil || c.storeIf(value) {
			c.store(key, value, ttl)
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// Invalidate removes one key; the next GetOrFetch for it is a forced miss.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.flight.Forget(key)
}

// InvalidateAll removes every entry in this namespace.
func (c *Cache[T]) InvalidateAll() {
	c.mu.Lock()
	for key := range c.entries {
		c.flight.Forget(key)
	}
	c.entries = make(map[string]entry[T])
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired or not.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[T]) lookup(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c *Cache[T]) store(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry[T]{value: value, storedAt: c.now(), ttl: ttl}
	c.mu.Unlock()
}
