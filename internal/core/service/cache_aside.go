package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/port"
)

// CacheAside reads through the cache on a miss and invalidates after a
// successful durable write. It holds no locks: concurrent misses on the same
// key may both load and both set, last writer wins.
type CacheAside struct {
	cache        port.CacheRepository
	storeTimeout time.Duration
	log          *zap.Logger
}

func NewCacheAside(cache port.CacheRepository, storeTimeout time.Duration, log *zap.Logger) *CacheAside {
	return &CacheAside{
		cache:        cache,
		storeTimeout: storeTimeout,
		log:          log.With(zap.String("component", "cache_aside")),
	}
}

// Read returns the cached value for key, or calls loader on a miss and caches
// its result for ttl. Loader errors are returned and never cached.
func Read[T any](ctx context.Context, c *CacheAside, key string, ttl time.Duration, loader func(ctx context.Context) (T, error)) (T, error) {
	if raw, ok := c.cache.Get(ctx, key); ok {
		var cached T
		err := json.Unmarshal(raw, &cached)
		if err == nil {
			return cached, nil
		}
		c.log.Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
	}

	loadCtx, cancel := c.storeContext(ctx)
	defer cancel()

	value, err := loader(loadCtx)
	if err != nil {
		var zero T
		return zero, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("value not cacheable", zap.String("key", key), zap.Error(err))
		return value, nil
	}

	if err := c.cache.SetWithTTL(ctx, key, raw, ttl); err != nil {
		c.log.Warn("cache populate failed", zap.String("key", key), zap.Error(err))
	}

	// Decode what was cached so a miss returns exactly what a later hit will.
	var fresh T
	if err := json.Unmarshal(raw, &fresh); err != nil {
		return value, nil
	}
	return fresh, nil
}

// Write runs mutate against the durable store and, only if it succeeded,
// deletes every key. Delete failures are logged, not returned.
func (c *CacheAside) Write(ctx context.Context, mutate func(ctx context.Context) error, keys ...string) error {
	writeCtx, cancel := c.storeContext(ctx)
	defer cancel()

	if err := mutate(writeCtx); err != nil {
		return err
	}

	c.Invalidate(ctx, keys...)
	return nil
}

// storeContext bounds a durable-store call.
func (c *CacheAside) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.storeTimeout)
}

// Invalidate attempts to delete each key independently.
func (c *CacheAside) Invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := c.cache.Delete(ctx, key); err != nil {
			c.log.Error("cache invalidation failed, stale reads possible until ttl expiry",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}
