package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const completionGuardTTL = 24 * time.Hour

var (
	ErrDuplicateCompletion = errors.New("order already completed")
	ErrInvalidOrder        = errors.New("invalid order")
)

func completionKey(orderID string) string {
	return "order:completed:" + orderID
}

// OrderService owns the transition of an order into the completed state and
// announces it exactly once.
type OrderService struct {
	cache    port.CacheRepository
	producer *RevenueProducer
	log      *zap.Logger
	now      func() time.Time
}

func NewOrderService(cache port.CacheRepository, producer *RevenueProducer, log *zap.Logger) *OrderService {
	return &OrderService{
		cache:    cache,
		producer: producer,
		log:      log.With(zap.String("component", "order_service")),
		now:      time.Now,
	}
}

// Complete marks orderID completed and publishes its revenue event. A repeat
// within the guard window returns ErrDuplicateCompletion and publishes nothing.
// If the guard itself cannot be reached the completion still goes through.
func (s *OrderService) Complete(ctx context.Context, orderID string, amount float64, userName string) (*domain.OrderCompletion, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrInvalidOrder)
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidOrder)
	}

	first, err := s.cache.SetIdempotency(ctx, completionKey(orderID), completionGuardTTL)
	if err != nil {
		s.log.Warn("completion guard unavailable, publishing without it",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	} else if !first {
		return nil, ErrDuplicateCompletion
	}

	completion := &domain.OrderCompletion{
		OrderID:     orderID,
		Amount:      amount,
		UserName:    strings.TrimSpace(userName),
		Status:      domain.OrderStatusCompleted,
		CompletedAt: s.now().UTC(),
	}
	completion.Notified = s.producer.Publish(ctx, completion.OrderID, completion.Amount, completion.UserName)

	return completion, nil
}
