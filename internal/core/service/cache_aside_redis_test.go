package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/observability"
)

type versionedStore struct {
	mu      sync.Mutex
	version string
}

func (s *versionedStore) load(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, nil
}

func (s *versionedStore) set(v string) func(context.Context) error {
	return func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.version = v
		return nil
	}
}

func TestCacheAside_WriteInvalidatesAfterBrokerBlip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, ContextTimeoutEnabled: true})
	t.Cleanup(func() { client.Close() })

	cache := storage.NewRedisCache(client, 200*time.Millisecond, observability.NewCollector("test"), zap.NewNop())
	ca := service.NewCacheAside(cache, time.Second, zap.NewNop())
	store := &versionedStore{version: "v1"}
	key := service.ProductKey("p1")
	ctx := context.Background()

	got, err := service.Read(ctx, ca, key, 10*time.Minute, store.load)
	require.NoError(t, err)
	require.Equal(t, "v1", got)

	// Enough failed reads to open the breaker.
	mr.Close()
	for i := 0; i < 5; i++ {
		cache.Get(ctx, key)
	}
	require.NoError(t, mr.Restart())
	_, ok := cache.Get(ctx, key)
	require.False(t, ok, "breaker should still be open")
	require.True(t, mr.Exists(key))

	require.NoError(t, ca.Write(ctx, store.set("v2"), key))
	assert.False(t, mr.Exists(key), "invalidation must reach the broker once it is back")

	got, err = service.Read(ctx, ca, key, 10*time.Minute, store.load)
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
}
