package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// RevenueProducer announces completed orders on the revenue topic. Delivery is
// fire-and-forget: a subscriber that is not connected misses the event.
type RevenueProducer struct {
	bus     port.EventBus
	topic   string
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func NewRevenueProducer(bus port.EventBus, topic string, timeout time.Duration, log *zap.Logger) *RevenueProducer {
	return &RevenueProducer{
		bus:     bus,
		topic:   topic,
		timeout: timeout,
		log:     log.With(zap.String("component", "revenue_producer")),
		now:     time.Now,
	}
}

// Publish reports whether the event was handed to the bus. It never fails the
// caller; an order is completed whether or not anyone hears about it.
func (p *RevenueProducer) Publish(ctx context.Context, orderID string, amount float64, userName string) bool {
	event := domain.RevenueEvent{
		OrderID:   orderID,
		Amount:    amount,
		UserName:  userName,
		Timestamp: p.now().UTC(),
		EventType: domain.EventTypeOrderCompleted,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to encode revenue event", zap.String("order_id", orderID), zap.Error(err))
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.bus.Publish(ctx, p.topic, payload); err != nil {
		p.log.Error("failed to publish revenue event",
			zap.String("order_id", orderID),
			zap.String("topic", p.topic),
			zap.Error(err),
		)
		return false
	}

	p.log.Debug("revenue event published", zap.String("order_id", orderID), zap.Float64("amount", amount))
	return true
}
