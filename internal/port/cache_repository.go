package port

import (
	"context"
	"time"
)

type CacheRepository interface {
	// Get returns the cached bytes for key. A broker failure reads as a miss.
	Get(ctx context.Context, key string) ([]byte, bool)

	// SetWithTTL overwrites key unconditionally; the TTL starts now.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// SetIdempotency sets a key only if it is absent, returns false if it already exists
	SetIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
