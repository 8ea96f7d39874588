package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/observability"
	"github.com/rl1809/storefront/internal/port"
)

// RedisBus publishes on the command client and subscribes on a separate
// client. A connection in subscribe mode only accepts (P)SUBSCRIBE, PING and
// QUIT, so the two roles never share a pool.
type RedisBus struct {
	publisher  *redis.Client
	subscriber *redis.Client
	metrics    *observability.Collector
	log        *zap.Logger

	backoffMin time.Duration
	backoffMax time.Duration
}

func NewRedisBus(publisher, subscriber *redis.Client, metrics *observability.Collector, log *zap.Logger) *RedisBus {
	return &RedisBus{
		publisher:  publisher,
		subscriber: subscriber,
		metrics:    metrics,
		log:        log.With(zap.String("component", "redis_bus")),
		backoffMin: defaultBackoffMin,
		backoffMax: defaultBackoffMax,
	}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.publisher.Publish(ctx, topic, payload).Err(); err != nil {
		b.metrics.BusPublished.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	b.metrics.BusPublished.WithLabelValues(topic, "ok").Inc()
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string, handler port.MessageHandler) (port.Subscription, error) {
	ps := b.subscriber.Subscribe(ctx, topic)

	// Subscribe is lazy; Receive waits for the server's confirmation so
	// auth and network failures surface to the caller.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &redisSubscription{
		pubsub: ps,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sub.connected.Store(true)
	go b.receiveLoop(loopCtx, sub, topic, handler)

	b.log.Info("subscribed", zap.String("topic", topic))
	return sub, nil
}

func (b *RedisBus) receiveLoop(ctx context.Context, sub *redisSubscription, topic string, handler port.MessageHandler) {
	defer close(sub.done)

	backoff := b.backoffMin
	for {
		msg, err := sub.pubsub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}

			// go-redis drops the broken connection and re-issues SUBSCRIBE on
			// the next receive. Anything published meanwhile is gone.
			sub.connected.Store(false)
			b.metrics.BusReconnect.Inc()
			b.log.Warn("subscription interrupted, reconnecting",
				zap.String("topic", topic),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)

			var ok bool
			if backoff, ok = sleepBackoff(ctx, backoff, b.backoffMax); !ok {
				return
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			// The server confirms the SUBSCRIBE replayed on a new connection.
			backoff = b.backoffMin
			if !sub.connected.Swap(true) {
				b.log.Info("subscription restored", zap.String("topic", topic))
			}
		case *redis.Message:
			backoff = b.backoffMin
			sub.connected.Store(true)
			deliver(ctx, b.log, b.metrics, topic, handler, []byte(m.Payload))
		}
	}
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	done      chan struct{}
	connected atomic.Bool
	once      sync.Once
	err       error
}

func (s *redisSubscription) Connected() bool {
	return s.connected.Load()
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.pubsub.Close()
		<-s.done
	})
	return s.err
}
