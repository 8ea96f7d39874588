package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

var errBroker = errors.New("broker unavailable")

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// mockCache is an in-memory CacheRepository with a controllable clock.
type mockCache struct {
	mu          sync.Mutex
	now         time.Time
	entries     map[string]cacheEntry
	deleted     []string
	failDelete  map[string]bool
	failSet     bool
	failGuard   bool
	setCalls    int
	idempotency map[string]bool
}

func newMockCache() *mockCache {
	return &mockCache{
		now:         time.Unix(1_700_000_000, 0),
		entries:     make(map[string]cacheEntry),
		failDelete:  make(map[string]bool),
		idempotency: make(map[string]bool),
	}
}

func (m *mockCache) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.now.Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (m *mockCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.failSet {
		return errBroker
	}
	m.entries[key] = cacheEntry{value: value, expiresAt: m.now.Add(ttl)}
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, key)
	if m.failDelete[key] {
		return errBroker
	}
	delete(m.entries, key)
	return nil
}

func (m *mockCache) SetIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGuard {
		return false, errBroker
	}
	if m.idempotency[key] {
		return false, nil
	}
	m.idempotency[key] = true
	return true, nil
}

func (m *mockCache) put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = cacheEntry{value: value, expiresAt: m.now.Add(time.Hour)}
}

func (m *mockCache) has(key string) bool {
	_, ok := m.Get(context.Background(), key)
	return ok
}

func (m *mockCache) deletedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// mockCatalog is an in-memory CatalogRepository counting finder calls.
type mockCatalog struct {
	mu         sync.Mutex
	products   map[string]domain.Product
	categories map[string]domain.Category
	calls      map[string]int
	err        error
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		products:   make(map[string]domain.Product),
		categories: make(map[string]domain.Category),
		calls:      make(map[string]int),
	}
}

func (m *mockCatalog) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockCatalog) record(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
	return m.err
}

func (m *mockCatalog) FindAllProducts(ctx context.Context) ([]domain.Product, error) {
	if err := m.record("FindAllProducts"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockCatalog) FindProductByID(ctx context.Context, id string) (*domain.Product, error) {
	if err := m.record("FindProductByID"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	return &p, nil
}

func (m *mockCatalog) UpsertProduct(ctx context.Context, product domain.Product) error {
	if err := m.record("UpsertProduct"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = product
	return nil
}

func (m *mockCatalog) DeleteProduct(ctx context.Context, id string) error {
	if err := m.record("DeleteProduct"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return port.ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *mockCatalog) FindAllCategories(ctx context.Context) ([]domain.Category, error) {
	if err := m.record("FindAllCategories"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockCatalog) FindCategoryByID(ctx context.Context, id string) (*domain.Category, error) {
	if err := m.record("FindCategoryByID"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	return &c, nil
}

func (m *mockCatalog) UpsertCategory(ctx context.Context, category domain.Category) error {
	if err := m.record("UpsertCategory"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[category.ID] = category
	return nil
}

func (m *mockCatalog) DeleteCategory(ctx context.Context, id string) error {
	if err := m.record("DeleteCategory"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[id]; !ok {
		return port.ErrNotFound
	}
	delete(m.categories, id)
	return nil
}

// mockBus delivers synchronously to every handler subscribed to the topic.
type mockBus struct {
	mu           sync.Mutex
	handlers     map[string][]port.MessageHandler
	published    [][]byte
	publishErr   error
	subscribeErr error
	closed       int

	disconnected atomic.Bool
}

func newMockBus() *mockBus {
	return &mockBus{handlers: make(map[string][]port.MessageHandler)}
}

func (b *mockBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	if b.publishErr != nil {
		b.mu.Unlock()
		return b.publishErr
	}
	b.published = append(b.published, payload)
	handlers := append([]port.MessageHandler(nil), b.handlers[topic]...)
	b.mu.Unlock()

	for _, h := range handlers {
		_ = h(ctx, payload)
	}
	return nil
}

func (b *mockBus) Subscribe(ctx context.Context, topic string, handler port.MessageHandler) (port.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
	return &mockSubscription{bus: b, topic: topic}, nil
}

func (b *mockBus) publishedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

type mockSubscription struct {
	bus   *mockBus
	topic string
}

func (s *mockSubscription) Connected() bool {
	return !s.bus.disconnected.Load()
}

func (s *mockSubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.handlers, s.topic)
	s.bus.closed++
	return nil
}

// mockFeed is an in-memory FeedStore.
type mockFeed struct {
	mu      sync.Mutex
	items   []domain.Notification
	pushErr error
	listErr error
}

func (f *mockFeed) Push(ctx context.Context, n domain.Notification, capacity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.items = append([]domain.Notification{n}, f.items...)
	if len(f.items) > capacity {
		f.items = f.items[:capacity]
	}
	return nil
}

func (f *mockFeed) List(ctx context.Context) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Notification(nil), f.items...), nil
}

func (f *mockFeed) Update(ctx context.Context, fn func([]domain.Notification) ([]domain.Notification, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return f.listErr
	}
	next, err := fn(append([]domain.Notification(nil), f.items...))
	if err != nil {
		return err
	}
	f.items = next
	return nil
}
