// Package cachemanager wraps an expiring in-memory cache behind a
// typed interface. The registry uses it to memoise per-commit index
// parses: the cache key is the commit sha, so entries never go stale.
package cachemanager

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/gto/internal/log"
)

const DefaultExpiration = 10 * time.Minute
const DefaultCleanupInterval = 30 * time.Minute

// NewInMemoryCacheManager initializes the in-memory cache.
func NewInMemoryCacheManager[V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *InMemoryCacheManager[V] {
	return &InMemoryCacheManager[V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
	}
}

// InMemoryCacheManager is a typed wrapper around go-cache.
type InMemoryCacheManager[V any] struct {
	useCase string
	cache   *gocache.Cache
}

// Get retrieves an item from the cache by its key.
func (c *InMemoryCacheManager[V]) Get(ctx context.Context, key string) (V, bool) {
	var zeroValue V

	value, found := c.cache.Get(key)
	if !found {
		return zeroValue, false
	}

	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type assertion when getting value", "use_case", c.useCase, "key", key)
		return zeroValue, false
	}

	log.Debug(log.CatCache, "cache hit", "use_case", c.useCase, "key", key)
	return v, true
}

// Set sets a value in the cache with a key and TTL.
func (c *InMemoryCacheManager[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	c.cache.Set(key, value, ttl)
}

// Delete removes values from the cache by key.
func (c *InMemoryCacheManager[V]) Delete(ctx context.Context, keys ...string) {
	for _, key := range keys {
		c.cache.Delete(key)
	}
}

// Flush drops every cached entry.
func (c *InMemoryCacheManager[V]) Flush(ctx context.Context) {
	c.cache.Flush()
}
