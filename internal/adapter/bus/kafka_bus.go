package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/observability"
	"github.com/rl1809/storefront/internal/port"
)

// KafkaBus is the alternative bus backend. Every subscription joins its own
// consumer group starting at the newest offset, which gives the same
// fan-out, no-replay behaviour as Redis pub/sub.
type KafkaBus struct {
	brokers []string
	writer  *kafka.Writer
	metrics *observability.Collector
	log     *zap.Logger

	backoffMin time.Duration
	backoffMax time.Duration
}

func NewKafkaBus(brokers []string, metrics *observability.Collector, log *zap.Logger) *KafkaBus {
	return &KafkaBus{
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		metrics:    metrics,
		log:        log.With(zap.String("component", "kafka_bus")),
		backoffMin: defaultBackoffMin,
		backoffMax: defaultBackoffMax,
	}
}

// KafkaTopic maps a bus topic onto Kafka's legal topic charset.
func KafkaTopic(topic string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '.'
		}
	}, topic)
}

func (b *KafkaBus) Publish(ctx context.Context, topic string, payload []byte) error {
	err := b.writer.WriteMessages(ctx, kafka.Message{
		Topic: KafkaTopic(topic),
		Value: payload,
	})
	if err != nil {
		b.metrics.BusPublished.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	b.metrics.BusPublished.WithLabelValues(topic, "ok").Inc()
	return nil
}

func (b *KafkaBus) Subscribe(ctx context.Context, topic string, handler port.MessageHandler) (port.Subscription, error) {
	name := KafkaTopic(topic)

	// The reader connects lazily, so check the broker here to fail setup loudly.
	if err := b.checkTopic(ctx, name); err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.brokers,
		Topic:       name,
		GroupID:     name + "-" + uuid.NewString(),
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    1e6,
	})

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &kafkaSubscription{
		reader: reader,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sub.connected.Store(true)
	go b.receiveLoop(loopCtx, sub, name, topic, handler)

	b.log.Info("subscribed", zap.String("topic", name))
	return sub, nil
}

// checkTopic checks that the first broker answers and knows the topic.
func (b *KafkaBus) checkTopic(ctx context.Context, name string) error {
	conn, err := kafka.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.ReadPartitions(name)
	return err
}

func (b *KafkaBus) receiveLoop(ctx context.Context, sub *kafkaSubscription, name, topic string, handler port.MessageHandler) {
	defer close(sub.done)

	backoff := b.backoffMin
	for {
		msg, err := sub.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}

			sub.connected.Store(false)
			b.metrics.BusReconnect.Inc()
			b.log.Warn("kafka read failed, retrying",
				zap.String("topic", topic),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)

			var ok bool
			if backoff, ok = sleepBackoff(ctx, backoff, b.backoffMax); !ok {
				return
			}
			// The reader gives no signal when it recovers; ask the broker.
			sub.connected.Store(b.checkTopic(ctx, name) == nil)
			continue
		}

		backoff = b.backoffMin
		sub.connected.Store(true)
		deliver(ctx, b.log, b.metrics, topic, handler, msg.Value)
	}
}

func (b *KafkaBus) Close() error {
	return b.writer.Close()
}

type kafkaSubscription struct {
	reader    *kafka.Reader
	cancel    context.CancelFunc
	done      chan struct{}
	connected atomic.Bool
	once      sync.Once
	err       error
}

func (s *kafkaSubscription) Connected() bool {
	return s.connected.Load()
}

func (s *kafkaSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.err = s.reader.Close()
	})
	return s.err
}
