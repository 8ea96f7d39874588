package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id         VARCHAR(64)  NOT NULL PRIMARY KEY,
		name       VARCHAR(255) NOT NULL,
		slug       VARCHAR(255) NOT NULL,
		image      TEXT         NOT NULL,
		is_active  BOOLEAN      NOT NULL DEFAULT TRUE,
		created_at DATETIME(6)  NOT NULL,
		updated_at DATETIME(6)  NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id          VARCHAR(64)    NOT NULL PRIMARY KEY,
		name        VARCHAR(255)   NOT NULL,
		description TEXT           NOT NULL,
		price       DECIMAL(12, 2) NOT NULL,
		category_id VARCHAR(64)    NOT NULL,
		stock       INT            NOT NULL DEFAULT 0,
		images      JSON           NOT NULL,
		is_active   BOOLEAN        NOT NULL DEFAULT TRUE,
		created_at  DATETIME(6)    NOT NULL,
		updated_at  DATETIME(6)    NOT NULL,
		INDEX idx_products_category (category_id)
	)`,
}

const productColumns = `
	p.id, p.name, p.description, p.price, p.category_id, COALESCE(c.name, ''),
	p.stock, p.images, p.is_active, p.created_at, p.updated_at`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range mysqlSchema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) FindAllProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT`+productColumns+`
		FROM products p LEFT JOIN categories c ON c.id = p.category_id
		ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (m *MySQLAdapter) FindProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT`+productColumns+`
		FROM products p LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = ?`, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	return p, err
}

func (m *MySQLAdapter) UpsertProduct(ctx context.Context, p domain.Product) error {
	images, err := json.Marshal(nonNil(p.Images))
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, category_id, stock, images, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), description = VALUES(description), price = VALUES(price),
			category_id = VALUES(category_id), stock = VALUES(stock), images = VALUES(images),
			is_active = VALUES(is_active), updated_at = VALUES(updated_at)`,
		p.ID, p.Name, p.Description, p.Price, p.CategoryID, p.Stock, images, p.IsActive,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteProduct(ctx context.Context, id string) error {
	return m.deleteByID(ctx, "products", id)
}

func (m *MySQLAdapter) FindAllCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, slug, image, is_active, created_at, updated_at
		FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Image, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

func (m *MySQLAdapter) FindCategoryByID(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, slug, image, is_active, created_at, updated_at
		FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Slug, &c.Image, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query category: %w", err)
	}
	return &c, nil
}

func (m *MySQLAdapter) UpsertCategory(ctx context.Context, c domain.Category) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, slug, image, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), slug = VALUES(slug), image = VALUES(image),
			is_active = VALUES(is_active), updated_at = VALUES(updated_at)`,
		c.ID, c.Name, c.Slug, c.Image, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert category: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteCategory(ctx context.Context, id string) error {
	return m.deleteByID(ctx, "categories", id)
}

func (m *MySQLAdapter) deleteByID(ctx context.Context, table, id string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p      domain.Product
		images []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.CategoryID, &p.CategoryName,
		&p.Stock, &images, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	if err := json.Unmarshal(images, &p.Images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	p.Images = nonNil(p.Images)
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
