package port

import "context"

// MessageHandler is invoked once per received message. A returned error is
// logged by the bus and does not end the subscription.
type MessageHandler func(ctx context.Context, payload []byte) error

type Subscription interface {
	// Connected is false while the receive loop is reconnecting to the broker.
	// Messages published in that window are lost.
	Connected() bool

	// Close stops delivery and returns once the receive loop has exited.
	Close() error
}

type EventBus interface {
	// Publish sends payload to topic. Success says nothing about delivery.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe confirms the subscription before returning; a setup failure is
	// returned here and not retried.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)
}
