// Package bus implements port.EventBus on Redis pub/sub and on Kafka.
package bus

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/observability"
	"github.com/rl1809/storefront/internal/port"
)

const (
	defaultBackoffMin = 100 * time.Millisecond
	defaultBackoffMax = 5 * time.Second
)

// deliver runs handler for one message. Errors and panics stay inside this
// call so one bad message never ends a receive loop.
func deliver(ctx context.Context, log *zap.Logger, metrics *observability.Collector, topic string, handler port.MessageHandler, payload []byte) {
	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			log.Error("message handler panicked", zap.String("topic", topic), zap.Any("panic", r))
		}
		metrics.BusReceived.WithLabelValues(topic, status).Inc()
	}()

	if err := handler(ctx, payload); err != nil {
		status = "error"
		log.Warn("message handler failed", zap.String("topic", topic), zap.Error(err))
	}
}

// sleepBackoff waits for d or until ctx is done, and returns the next delay.
func sleepBackoff(ctx context.Context, d, limit time.Duration) (time.Duration, bool) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return d, false
	case <-t.C:
	}

	if d *= 2; d > limit {
		d = limit
	}
	return d, true
}
