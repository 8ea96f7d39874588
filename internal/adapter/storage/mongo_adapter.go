package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	productsCollection   = "products"
	categoriesCollection = "categories"
)

// MongoAdapter stores catalog documents as-is. Unlike the SQL store there is
// no join, so the category name is copied into products on write.
type MongoAdapter struct {
	products   *mongo.Collection
	categories *mongo.Collection
}

func NewMongoAdapter(db *mongo.Database) *MongoAdapter {
	return &MongoAdapter{
		products:   db.Collection(productsCollection),
		categories: db.Collection(categoriesCollection),
	}
}

func (m *MongoAdapter) EnsureIndexes(ctx context.Context) error {
	_, err := m.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "category_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create products index: %w", err)
	}
	return nil
}

func (m *MongoAdapter) FindAllProducts(ctx context.Context) ([]domain.Product, error) {
	cursor, err := m.products.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer cursor.Close(ctx)

	products := []domain.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	for i := range products {
		products[i].Images = nonNil(products[i].Images)
	}
	return products, nil
}

func (m *MongoAdapter) FindProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := m.products.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	p.Images = nonNil(p.Images)
	return &p, nil
}

func (m *MongoAdapter) UpsertProduct(ctx context.Context, p domain.Product) error {
	p.CategoryName = ""
	if p.CategoryID != "" {
		c, err := m.FindCategoryByID(ctx, p.CategoryID)
		switch {
		case err == nil:
			p.CategoryName = c.Name
		case !errors.Is(err, port.ErrNotFound):
			return err
		}
	}
	p.Images = nonNil(p.Images)

	_, err := m.products.ReplaceOne(ctx, bson.M{"_id": p.ID}, p, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (m *MongoAdapter) DeleteProduct(ctx context.Context, id string) error {
	return deleteDocument(ctx, m.products, id)
}

func (m *MongoAdapter) FindAllCategories(ctx context.Context) ([]domain.Category, error) {
	cursor, err := m.categories.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find categories: %w", err)
	}
	defer cursor.Close(ctx)

	categories := []domain.Category{}
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return categories, nil
}

func (m *MongoAdapter) FindCategoryByID(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	err := m.categories.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find category: %w", err)
	}
	return &c, nil
}

func (m *MongoAdapter) UpsertCategory(ctx context.Context, c domain.Category) error {
	_, err := m.categories.ReplaceOne(ctx, bson.M{"_id": c.ID}, c, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert category: %w", err)
	}

	_, err = m.products.UpdateMany(ctx,
		bson.M{"category_id": c.ID},
		bson.M{"$set": bson.M{"category_name": c.Name}},
	)
	if err != nil {
		return fmt.Errorf("propagate category name: %w", err)
	}
	return nil
}

func (m *MongoAdapter) DeleteCategory(ctx context.Context, id string) error {
	return deleteDocument(ctx, m.categories, id)
}

func deleteDocument(ctx context.Context, coll *mongo.Collection, id string) error {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", coll.Name(), err)
	}
	if res.DeletedCount == 0 {
		return port.ErrNotFound
	}
	return nil
}
