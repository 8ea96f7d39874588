package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
)

const maxFeedUpdateRetries = 5

var ErrFeedConflict = errors.New("feed update conflict")

// RedisFeedStore keeps the notification feed in one Redis list, index 0 being
// the newest record.
type RedisFeedStore struct {
	client  *redis.Client
	key     string
	timeout time.Duration
	log     *zap.Logger
}

func NewRedisFeedStore(client *redis.Client, key string, timeout time.Duration, log *zap.Logger) *RedisFeedStore {
	return &RedisFeedStore{
		client:  client,
		key:     key,
		timeout: timeout,
		log:     log.With(zap.String("component", "feed_store")),
	}
}

func (s *RedisFeedStore) Push(ctx context.Context, n domain.Notification, capacity int) error {
	if capacity <= 0 {
		return fmt.Errorf("invalid feed capacity %d", capacity)
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.key, data)
		pipe.LTrim(ctx, s.key, 0, int64(capacity-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}

func (s *RedisFeedStore) List(ctx context.Context) ([]domain.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return s.decode(raw), nil
}

func (s *RedisFeedStore) Update(ctx context.Context, fn func([]domain.Notification) ([]domain.Notification, error)) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	txf := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, s.key, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("list notifications: %w", err)
		}

		next, err := fn(s.decode(raw))
		if err != nil {
			return err
		}

		encoded := make([]interface{}, 0, len(next))
		for _, n := range next {
			data, err := json.Marshal(n)
			if err != nil {
				return fmt.Errorf("encode notification: %w", err)
			}
			encoded = append(encoded, data)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.key)
			if len(encoded) > 0 {
				pipe.RPush(ctx, s.key, encoded...)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxFeedUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, s.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrFeedConflict
}

func (s *RedisFeedStore) decode(raw []string) []domain.Notification {
	out := make([]domain.Notification, 0, len(raw))
	for _, item := range raw {
		var n domain.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			s.log.Warn("skipping corrupt feed entry", zap.Error(err))
			continue
		}
		out = append(out, n)
	}
	return out
}
