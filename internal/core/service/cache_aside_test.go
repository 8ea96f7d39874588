package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type item struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func countingLoader(calls *int, value []item, err error) func(context.Context) ([]item, error) {
	return func(context.Context) ([]item, error) {
		*calls++
		return value, err
	}
}

func TestRead_MissPopulatesThenHits(t *testing.T) {
	cache := newMockCache()
	ca := NewCacheAside(cache, time.Second, zap.NewNop())
	calls := 0
	loader := countingLoader(&calls, []item{{Name: "mug", Price: 9.5}}, nil)

	first, err := Read(context.Background(), ca, KeyAllProducts, 5*time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, cache.has(KeyAllProducts))

	second, err := Read(context.Background(), ca, KeyAllProducts, 5*time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second read within ttl must be served from cache")
	assert.Equal(t, first, second)
}

func TestRead_ReloadsAfterTTL(t *testing.T) {
	cache := newMockCache()
	ca := NewCacheAside(cache, time.Second, zap.NewNop())
	calls := 0
	loader := countingLoader(&calls, []item{{Name: "mug"}}, nil)

	_, err := Read(context.Background(), ca, KeyAllProducts, 5*time.Minute, loader)
	require.NoError(t, err)

	cache.advance(5*time.Minute + time.Second)

	_, err = Read(context.Background(), ca, KeyAllProducts, 5*time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRead_LoaderErrorIsNotCached(t *testing.T) {
	cache := newMockCache()
	ca := NewCacheAside(cache, time.Second, zap.NewNop())
	calls := 0
	storeDown := errors.New("store down")

	_, err := Read(context.Background(), ca, KeyAllProducts, time.Minute, countingLoader(&calls, nil, storeDown))
	require.ErrorIs(t, err, storeDown)
	assert.False(t, cache.has(KeyAllProducts))
	assert.Equal(t, 0, cache.setCalls)

	value, err := Read(context.Background(), ca, KeyAllProducts, time.Minute, countingLoader(&calls, []item{{Name: "cup"}}, nil))
	require.NoError(t, err)
	assert.Equal(t, []item{{Name: "cup"}}, value)
	assert.Equal(t, 2, calls)
}

func TestRead_CorruptEntryTriggersReload(t *testing.T) {
	cache := newMockCache()
	cache.put(KeyAllProducts, []byte("{not json"))
	ca := NewCacheAside(cache, time.Second, zap.NewNop())
	calls := 0

	value, err := Read(context.Background(), ca, KeyAllProducts, time.Minute, countingLoader(&calls, []item{{Name: "cup"}}, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []item{{Name: "cup"}}, value)

	raw, ok := cache.Get(context.Background(), KeyAllProducts)
	require.True(t, ok)
	assert.JSONEq(t, `[{"name":"cup","price":0}]`, string(raw))
}

func TestRead_SetFailureStillReturnsValue(t *testing.T) {
	cache := newMockCache()
	cache.failSet = true
	ca := NewCacheAside(cache, time.Second, zap.NewNop())
	calls := 0

	value, err := Read(context.Background(), ca, KeyAllProducts, time.Minute, countingLoader(&calls, []item{{Name: "cup"}}, nil))
	require.NoError(t, err)
	assert.Equal(t, []item{{Name: "cup"}}, value)
	assert.Equal(t, 1, cache.setCalls)
}

func TestRead_LoaderContextIsBounded(t *testing.T) {
	ca := NewCacheAside(newMockCache(), 20*time.Millisecond, zap.NewNop())

	_, err := Read(context.Background(), ca, "slow", time.Minute, func(ctx context.Context) (item, error) {
		<-ctx.Done()
		return item{}, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWrite_InvalidatesEveryKeyEvenWhenOneFails(t *testing.T) {
	cache := newMockCache()
	cache.put(KeyAllProducts, []byte(`[]`))
	cache.put(ProductKey("P"), []byte(`{}`))
	cache.failDelete[KeyAllProducts] = true
	ca := NewCacheAside(cache, time.Second, zap.NewNop())

	err := ca.Write(context.Background(), func(context.Context) error { return nil }, KeyAllProducts, ProductKey("P"))
	require.NoError(t, err)

	assert.Equal(t, []string{KeyAllProducts, ProductKey("P")}, cache.deletedKeys())
	assert.False(t, cache.has(ProductKey("P")))
}

func TestWrite_FailedMutationSkipsInvalidation(t *testing.T) {
	cache := newMockCache()
	cache.put(KeyAllProducts, []byte(`[]`))
	ca := NewCacheAside(cache, time.Second, zap.NewNop())
	storeDown := errors.New("store down")

	err := ca.Write(context.Background(), func(context.Context) error { return storeDown }, KeyAllProducts)
	require.ErrorIs(t, err, storeDown)
	assert.Empty(t, cache.deletedKeys())
	assert.True(t, cache.has(KeyAllProducts))
}
