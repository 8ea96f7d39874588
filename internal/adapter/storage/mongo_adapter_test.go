package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

func getMongoAdapter(t *testing.T) *MongoAdapter {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		t.Skipf("MongoDB not available: %v", err)
	}

	db := client.Database("storefront_test")
	t.Cleanup(func() {
		db.Drop(context.Background())
		client.Disconnect(context.Background())
	})
	return NewMongoAdapter(db)
}

func TestMongo_CategoryRenamePropagatesToProducts(t *testing.T) {
	adapter := getMongoAdapter(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	category := domain.Category{ID: "cat-1", Name: "Phones", CreatedAt: now, UpdatedAt: now}
	if err := adapter.UpsertCategory(ctx, category); err != nil {
		t.Fatalf("UpsertCategory failed: %v", err)
	}
	if err := adapter.UpsertProduct(ctx, domain.Product{ID: "p-1", Name: "Phone", CategoryID: "cat-1", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("UpsertProduct failed: %v", err)
	}

	got, err := adapter.FindProductByID(ctx, "p-1")
	if err != nil {
		t.Fatalf("FindProductByID failed: %v", err)
	}
	if got.CategoryName != "Phones" {
		t.Errorf("expected category name Phones, got %q", got.CategoryName)
	}

	category.Name = "Mobiles"
	if err := adapter.UpsertCategory(ctx, category); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	got, _ = adapter.FindProductByID(ctx, "p-1")
	if got.CategoryName != "Mobiles" {
		t.Errorf("expected category name Mobiles, got %q", got.CategoryName)
	}
}

func TestMongo_DeleteMissing(t *testing.T) {
	adapter := getMongoAdapter(t)

	if err := adapter.DeleteProduct(context.Background(), "missing"); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}
