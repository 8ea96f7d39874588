package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const notificationTitleNewOrder = "New order received"

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrMalformedEvent       = errors.New("malformed revenue event")
	ErrAlreadyStarted       = errors.New("consumer already started")
)

type ConsumerState int32

const (
	StateIdle ConsumerState = iota
	StateSubscribed
	StateProcessing
	StateFailed
	StateReconnecting
)

func (s ConsumerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateProcessing:
		return "processing"
	case StateFailed:
		return "failed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// NotificationConsumer turns revenue events into records on the admin feed.
// The feed holds at most capacity records, newest first.
type NotificationConsumer struct {
	bus      port.EventBus
	feed     port.FeedStore
	topic    string
	capacity int
	log      *zap.Logger
	now      func() time.Time

	state atomic.Int32

	mu  sync.Mutex
	sub port.Subscription
}

func NewNotificationConsumer(bus port.EventBus, feed port.FeedStore, topic string, capacity int, log *zap.Logger) *NotificationConsumer {
	return &NotificationConsumer{
		bus:      bus,
		feed:     feed,
		topic:    topic,
		capacity: capacity,
		log:      log.With(zap.String("component", "notification_consumer")),
		now:      time.Now,
	}
}

// State reports StateReconnecting while a started subscription has lost its
// broker connection; events published in that window are not delivered.
func (c *NotificationConsumer) State() ConsumerState {
	state := ConsumerState(c.state.Load())
	if state != StateSubscribed && state != StateProcessing {
		return state
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil && !c.sub.Connected() {
		return StateReconnecting
	}
	return state
}

// Healthy is true while the subscription is live and connected.
func (c *NotificationConsumer) Healthy() bool {
	switch c.State() {
	case StateSubscribed, StateProcessing:
		return true
	default:
		return false
	}
}

// Start subscribes to the revenue topic. A setup failure leaves the consumer
// in StateFailed and is returned; it is not retried.
func (c *NotificationConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		return ErrAlreadyStarted
	}

	sub, err := c.bus.Subscribe(ctx, c.topic, c.handle)
	if err != nil {
		c.state.Store(int32(StateFailed))
		c.log.Error("revenue subscription failed", zap.String("topic", c.topic), zap.Error(err))
		return fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}

	c.sub = sub
	c.state.Store(int32(StateSubscribed))
	c.log.Info("listening for revenue events", zap.String("topic", c.topic), zap.Int("capacity", c.capacity))
	return nil
}

// Stop closes the subscription and waits for the receive loop to exit.
func (c *NotificationConsumer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub == nil {
		return nil
	}
	err := c.sub.Close()
	c.sub = nil
	c.state.Store(int32(StateIdle))
	return err
}

func (c *NotificationConsumer) handle(ctx context.Context, payload []byte) error {
	if c.state.CompareAndSwap(int32(StateSubscribed), int32(StateProcessing)) {
		defer c.state.CompareAndSwap(int32(StateProcessing), int32(StateSubscribed))
	}

	var event domain.RevenueEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.OrderID == "" {
		return fmt.Errorf("%w: missing order_id", ErrMalformedEvent)
	}
	if event.EventType != "" && event.EventType != domain.EventTypeOrderCompleted {
		return fmt.Errorf("%w: unexpected event type %q", ErrMalformedEvent, event.EventType)
	}

	record := c.newRecord(event)
	if err := c.feed.Push(ctx, record, c.capacity); err != nil {
		return fmt.Errorf("push notification for order %s: %w", event.OrderID, err)
	}

	c.log.Info("order notification stored",
		zap.String("order_id", event.OrderID),
		zap.String("notification_id", record.ID),
	)
	return nil
}

func (c *NotificationConsumer) newRecord(event domain.RevenueEvent) domain.Notification {
	return domain.Notification{
		ID:            uuid.NewString(),
		Type:          domain.NotificationTypeNewOrder,
		Title:         notificationTitleNewOrder,
		Message:       orderMessage(event),
		SourceOrderID: event.OrderID,
		Amount:        event.Amount,
		Timestamp:     c.now().UTC(),
		Read:          false,
		Priority:      domain.PriorityHigh,
	}
}

func orderMessage(event domain.RevenueEvent) string {
	msg := fmt.Sprintf("Order %s was completed for $%s", event.OrderID, strconv.FormatFloat(event.Amount, 'f', -1, 64))
	if event.UserName != "" {
		msg += " by " + event.UserName
	}
	return msg
}

func (c *NotificationConsumer) ListAll(ctx context.Context) ([]domain.Notification, error) {
	return c.feed.List(ctx)
}

// MarkRead flips the read flag of one record. Marking a read record again is
// a no-op that still succeeds.
func (c *NotificationConsumer) MarkRead(ctx context.Context, id string) error {
	return c.feed.Update(ctx, func(feed []domain.Notification) ([]domain.Notification, error) {
		for i := range feed {
			if feed[i].ID == id {
				feed[i].Read = true
				return feed, nil
			}
		}
		return nil, ErrNotificationNotFound
	})
}

func (c *NotificationConsumer) MarkAllRead(ctx context.Context) error {
	return c.feed.Update(ctx, func(feed []domain.Notification) ([]domain.Notification, error) {
		for i := range feed {
			feed[i].Read = true
		}
		return feed, nil
	})
}

func (c *NotificationConsumer) UnreadCount(ctx context.Context) (int, error) {
	feed, err := c.feed.List(ctx)
	if err != nil {
		return 0, err
	}
	unread := 0
	for _, n := range feed {
		if !n.Read {
			unread++
		}
	}
	return unread, nil
}
