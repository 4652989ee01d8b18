package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MorseWayne/shopfront/internal/cache"
	"github.com/MorseWayne/shopfront/internal/domain"
)

var errBoom = errors.New("boom")

// Mock LocalProductRepository for testing
type mockLocalRepo struct {
	mu       sync.Mutex
	products []*domain.Product
	nextID   int
	failGet  bool
	failAdd  bool
	failPut  bool
	calls    map[string]int
}

func newMockLocalRepo(products ...*domain.Product) *mockLocalRepo {
	return &mockLocalRepo{products: products, nextID: len(products) + 1, calls: map[string]int{}}
}

func (m *mockLocalRepo) Add(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Add"]++
	if m.failAdd {
		return nil, errBoom
	}
	cp := p.Clone()
	cp.ID = "local-" + strconv.Itoa(m.nextID)
	cp.IsLocal = true
	m.nextID++
	m.products = append(m.products, cp)
	return cp.Clone(), nil
}

func (m *mockLocalRepo) GetAll(ctx context.Context) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetAll"]++
	if m.failGet {
		return nil, errBoom
	}
	out := make([]*domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (m *mockLocalRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetByID"]++
	if m.failGet {
		return nil, errBoom
	}
	for _, p := range m.products {
		if p.ID == id {
			return p.Clone(), nil
		}
	}
	return nil, nil
}

func (m *mockLocalRepo) Put(ctx context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Put"]++
	if m.failPut {
		return errBoom
	}
	for i, existing := range m.products {
		if existing.ID == p.ID {
			m.products[i] = p.Clone()
			return nil
		}
	}
	m.products = append(m.products, p.Clone())
	return nil
}

func (m *mockLocalRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Delete"]++
	for i, p := range m.products {
		if p.ID == id {
			m.products = append(m.products[:i], m.products[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockLocalRepo) callCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// Mock remote.Source for testing
type mockRemoteSource struct {
	mu         sync.Mutex
	products   []*domain.Product
	categories []string
	fail       bool
	calls      int
	block      chan struct{} // 非 nil 时 Products 阻塞直到关闭
	entered    chan struct{}
}

func (m *mockRemoteSource) Products(ctx context.Context) ([]*domain.Product, error) {
	m.mu.Lock()
	m.calls++
	block, entered, fail := m.block, m.entered, m.fail
	m.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	if fail {
		return nil, errBoom
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (m *mockRemoteSource) Product(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errBoom
	}
	for _, p := range m.products {
		if p.ID == id {
			return p.Clone(), nil
		}
	}
	return nil, nil
}

func (m *mockRemoteSource) Categories(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errBoom
	}
	return append([]string(nil), m.categories...), nil
}

func (m *mockRemoteSource) setFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

func (m *mockRemoteSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Mock ProductLookup for testing
type mockLookup map[string]*domain.Product

func (m mockLookup) Product(ctx context.Context, id string) (*domain.Product, error) {
	p, ok := m[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "product", ID: id}
	}
	return p, nil
}

// Mock OrderPublisher for testing
type mockPublisher struct {
	mu     sync.Mutex
	orders []*domain.Order
	fail   bool
}

func (m *mockPublisher) PublishOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errBoom
	}
	m.orders = append(m.orders, order)
	return nil
}

func (m *mockPublisher) published() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// failingCache 读写都失败的快照存储
type failingCache struct {
	cache.NullCache
	failGet bool
	failSet bool
}

func (f *failingCache) Get(ctx context.Context, key string, dest any) error {
	if f.failGet {
		return errBoom
	}
	return cache.ErrCacheMiss
}

func (f *failingCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if f.failSet {
		return errBoom
	}
	return nil
}

// ctxCache 遵循上下文取消的内存存储，可模拟存储暂时不可用
type ctxCache struct {
	*cache.MemoryCache
	down atomic.Bool
}

func (c *ctxCache) setDown(down bool) { c.down.Store(down) }

func (c *ctxCache) Get(ctx context.Context, key string, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.down.Load() {
		return errBoom
	}
	return c.MemoryCache.Get(ctx, key, dest)
}

func (c *ctxCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.down.Load() {
		return errBoom
	}
	return c.MemoryCache.Set(ctx, key, value, expiration)
}

// cached 当前驻留内存的账本数
func (s *CartService) cached() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
