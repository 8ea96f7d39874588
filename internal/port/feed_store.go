package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type FeedStore interface {
	// Push prepends n and trims the feed to capacity as one update.
	Push(ctx context.Context, n domain.Notification, capacity int) error

	// List returns the feed newest first.
	List(ctx context.Context) ([]domain.Notification, error)

	// Update replaces the whole feed with the result of fn, applied to a
	// consistent snapshot. fn may be called more than once on conflict.
	Update(ctx context.Context, fn func([]domain.Notification) ([]domain.Notification, error)) error
}
