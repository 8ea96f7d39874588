package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/observability"
)

const (
	breakerMinRequests    = 5
	breakerFailureRatio   = 0.6
	breakerOpenTimeout    = 10 * time.Second
	breakerHalfOpenRequests = 1
)

// RedisCache is the command-connection side of the broker. Every call is
// bounded by timeout, and all but Delete go through a circuit breaker, so a
// broker outage costs at most one timeout per request until the breaker opens.
type RedisCache struct {
	client  *redis.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	metrics *observability.Collector
	log     *zap.Logger
}

func NewRedisCache(client *redis.Client, timeout time.Duration, metrics *observability.Collector, log *zap.Logger) *RedisCache {
	log = log.With(zap.String("component", "redis_cache"))
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: breakerHalfOpenRequests,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= breakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &RedisCache{
		client:  client,
		timeout: timeout,
		breaker: breaker,
		metrics: metrics,
		log:     log,
	}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.Get(ctx, key).Bytes()
	})
	if err != nil {
		r.metrics.CacheMisses.Inc()
		switch {
		case errors.Is(err, redis.Nil):
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			r.metrics.CacheErrors.WithLabelValues("get").Inc()
		default:
			r.metrics.CacheErrors.WithLabelValues("get").Inc()
			r.log.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	r.metrics.CacheHits.Inc()
	return res.([]byte), true
}

func (r *RedisCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		r.metrics.CacheErrors.WithLabelValues("set").Inc()
	}
	return err
}

// Delete bypasses the breaker: an invalidation after a durable write must
// reach the broker as soon as it is back, even while reads still fail fast.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.client.Del(ctx, key).Err()
	if err != nil {
		r.metrics.CacheErrors.WithLabelValues("delete").Inc()
	}
	return err
}

func (r *RedisCache) SetIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.SetNX(ctx, key, 1, ttl).Result()
	})
	if err != nil {
		r.metrics.CacheErrors.WithLabelValues("setnx").Inc()
		return false, err
	}

	return res.(bool), nil
}
