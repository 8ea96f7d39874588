package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	KeyAllProducts   = "products:all"
	KeyAllCategories = "categories:all"
)

var (
	ErrInvalidProduct  = errors.New("invalid product")
	ErrInvalidCategory = errors.New("invalid category")
	ErrUnknownCategory = errors.New("unknown category")
)

func ProductKey(id string) string  { return "product:" + id }
func CategoryKey(id string) string { return "category:" + id }

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

type CatalogService struct {
	repo          port.CatalogRepository
	cache         *CacheAside
	collectionTTL time.Duration
	entityTTL     time.Duration
}

func NewCatalogService(repo port.CatalogRepository, cache *CacheAside, collectionTTL, entityTTL time.Duration) *CatalogService {
	return &CatalogService{
		repo:          repo,
		cache:         cache,
		collectionTTL: collectionTTL,
		entityTTL:     entityTTL,
	}
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return Read(ctx, s.cache, KeyAllProducts, s.collectionTTL, s.repo.FindAllProducts)
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return Read(ctx, s.cache, ProductKey(id), s.entityTTL, func(ctx context.Context) (*domain.Product, error) {
		return s.repo.FindProductByID(ctx, id)
	})
}

func (s *CatalogService) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.ID = uuid.NewString()
	product.CreatedAt = time.Now().UTC()
	return s.saveProduct(ctx, product)
}

// UpdateProduct replaces the product's fields, keeping its id and creation time.
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, product domain.Product) (*domain.Product, error) {
	findCtx, cancel := s.cache.storeContext(ctx)
	existing, err := s.repo.FindProductByID(findCtx, id)
	cancel()
	if err != nil {
		return nil, err
	}
	product.ID = id
	product.CreatedAt = existing.CreatedAt
	return s.saveProduct(ctx, product)
}

func (s *CatalogService) saveProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if product.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	if product.Stock < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	}
	if product.Images == nil {
		product.Images = []string{}
	}

	product.UpdatedAt = time.Now().UTC()

	// The category lookup shares the write's store deadline.
	err := s.cache.Write(ctx, func(ctx context.Context) error {
		if err := s.resolveCategory(ctx, &product); err != nil {
			return err
		}
		return s.repo.UpsertProduct(ctx, product)
	}, ProductKey(product.ID), KeyAllProducts)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// resolveCategory copies the category name into product.
func (s *CatalogService) resolveCategory(ctx context.Context, product *domain.Product) error {
	product.CategoryName = ""
	if product.CategoryID == "" {
		return nil
	}
	category, err := s.repo.FindCategoryByID(ctx, product.CategoryID)
	if errors.Is(err, port.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, product.CategoryID)
	}
	if err != nil {
		return err
	}
	product.CategoryName = category.Name
	return nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	return s.cache.Write(ctx, func(ctx context.Context) error {
		return s.repo.DeleteProduct(ctx, id)
	}, ProductKey(id), KeyAllProducts)
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return Read(ctx, s.cache, KeyAllCategories, s.collectionTTL, s.repo.FindAllCategories)
}

func (s *CatalogService) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	return Read(ctx, s.cache, CategoryKey(id), s.entityTTL, func(ctx context.Context) (*domain.Category, error) {
		return s.repo.FindCategoryByID(ctx, id)
	})
}

func (s *CatalogService) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	category.ID = uuid.NewString()
	category.CreatedAt = time.Now().UTC()
	return s.saveCategory(ctx, category)
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id string, category domain.Category) (*domain.Category, error) {
	findCtx, cancel := s.cache.storeContext(ctx)
	existing, err := s.repo.FindCategoryByID(findCtx, id)
	cancel()
	if err != nil {
		return nil, err
	}
	category.ID = id
	category.CreatedAt = existing.CreatedAt
	return s.saveCategory(ctx, category)
}

// saveCategory also drops products:all, whose documents carry the category name.
func (s *CatalogService) saveCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidCategory)
	}
	if category.Slug == "" {
		category.Slug = slugify(category.Name)
	}
	if category.Slug == "" {
		return nil, fmt.Errorf("%w: name has no usable slug", ErrInvalidCategory)
	}
	category.UpdatedAt = time.Now().UTC()

	err := s.cache.Write(ctx, func(ctx context.Context) error {
		return s.repo.UpsertCategory(ctx, category)
	}, CategoryKey(category.ID), KeyAllCategories, KeyAllProducts)
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, id string) error {
	return s.cache.Write(ctx, func(ctx context.Context) error {
		return s.repo.DeleteCategory(ctx, id)
	}, CategoryKey(id), KeyAllCategories, KeyAllProducts)
}
