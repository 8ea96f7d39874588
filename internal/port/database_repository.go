package port

import (
	"context"
	"errors"

	"github.com/rl1809/storefront/internal/core/domain"
)

var ErrNotFound = errors.New("not found")

// CatalogRepository is the durable source of truth for catalog documents.
type CatalogRepository interface {
	FindAllProducts(ctx context.Context) ([]domain.Product, error)

	// FindProductByID returns ErrNotFound when no product has the id
	FindProductByID(ctx context.Context, id string) (*domain.Product, error)

	UpsertProduct(ctx context.Context, product domain.Product) error

	// DeleteProduct returns ErrNotFound when nothing was deleted
	DeleteProduct(ctx context.Context, id string) error

	FindAllCategories(ctx context.Context) ([]domain.Category, error)
	FindCategoryByID(ctx context.Context, id string) (*domain.Category, error)
	UpsertCategory(ctx context.Context, category domain.Category) error
	DeleteCategory(ctx context.Context, id string) error
}
