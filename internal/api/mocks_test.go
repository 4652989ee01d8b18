package api

import (
	"context"
	"time"

	"github.com/MorseWayne/shopfront/internal/domain"
	"github.com/MorseWayne/shopfront/internal/service"
)

// MockCatalogService for testing
type MockCatalogService struct {
	productsFunc func(ctx context.Context, category string) ([]*domain.Product, error)
	localFunc    func(ctx context.Context, category string) ([]*domain.Product, error)
	productFunc  func(ctx context.Context, id string) (*domain.Product, error)
	categories   []string
	reloadErr    error
	createFunc   func(ctx context.Context, in *domain.ProductInput) (*domain.Product, error)
	updateFunc   func(ctx context.Context, id string, in *domain.ProductInput) (*domain.Product, error)
	deleteErr    error
	deletedID    string
}

func (m *MockCatalogService) Products(ctx context.Context, category string) ([]*domain.Product, error) {
	if m.productsFunc != nil {
		return m.productsFunc(ctx, category)
	}
	return []*domain.Product{}, nil
}

func (m *MockCatalogService) LocalProducts(ctx context.Context, category string) ([]*domain.Product, error) {
	if m.localFunc != nil {
		return m.localFunc(ctx, category)
	}
	return []*domain.Product{}, nil
}

func (m *MockCatalogService) Product(ctx context.Context, id string) (*domain.Product, error) {
	if m.productFunc != nil {
		return m.productFunc(ctx, id)
	}
	return &domain.Product{ID: id, Title: "Test Product", Price: 1}, nil
}

func (m *MockCatalogService) Categories(ctx context.Context) ([]string, error) {
	return m.categories, nil
}

func (m *MockCatalogService) Reload(ctx context.Context) ([]*domain.Product, error) {
	if m.reloadErr != nil {
		return nil, m.reloadErr
	}
	return m.Products(ctx, "")
}

func (m *MockCatalogService) CreateLocalProduct(ctx context.Context, in *domain.ProductInput) (*domain.Product, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, in)
	}
	p := &domain.Product{ID: "local-1", IsLocal: true}
	in.ApplyTo(p)
	return p, nil
}

func (m *MockCatalogService) UpdateLocalProduct(ctx context.Context, id string, in *domain.ProductInput) (*domain.Product, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, id, in)
	}
	p := &domain.Product{ID: id, IsLocal: true}
	in.ApplyTo(p)
	return p, nil
}

func (m *MockCatalogService) DeleteLocalProduct(ctx context.Context, id string) error {
	m.deletedID = id
	return m.deleteErr
}

// MockCartService 记录最近一次调用的会话与参数
type MockCartService struct {
	lastSession  string
	lastProduct  string
	lastQuantity int
	addErr       error
	storeErr     error
	checkoutFunc func(ctx context.Context, sessionID string, req *domain.CheckoutRequest) (*domain.Order, error)
}

func (m *MockCartService) snapshot() (domain.CartSnapshot, error) {
	if m.storeErr != nil {
		return domain.CartSnapshot{}, m.storeErr
	}
	return domain.CartSnapshot{Items: []domain.LineItem{}}, nil
}

func (m *MockCartService) Get(ctx context.Context, sessionID string) (domain.CartSnapshot, error) {
	m.lastSession = sessionID
	return m.snapshot()
}

func (m *MockCartService) AddProduct(ctx context.Context, sessionID, productID string) (domain.CartSnapshot, error) {
	m.lastSession, m.lastProduct = sessionID, productID
	if m.addErr != nil {
		return domain.CartSnapshot{}, m.addErr
	}
	p := &domain.Product{ID: productID, Price: 2.5}
	return domain.CartSnapshot{Items: []domain.LineItem{{Product: p, Quantity: 1}}, TotalItems: 1, TotalPrice: 2.5}, nil
}

func (m *MockCartService) Remove(ctx context.Context, sessionID, productID string) (domain.CartSnapshot, error) {
	m.lastSession, m.lastProduct = sessionID, productID
	return m.snapshot()
}

func (m *MockCartService) Decrease(ctx context.Context, sessionID, productID string) (domain.CartSnapshot, error) {
	m.lastSession, m.lastProduct = sessionID, productID
	return m.snapshot()
}

func (m *MockCartService) UpdateQuantity(ctx context.Context, sessionID, productID string, quantity int) (domain.CartSnapshot, error) {
	m.lastSession, m.lastProduct, m.lastQuantity = sessionID, productID, quantity
	return m.snapshot()
}

func (m *MockCartService) Clear(ctx context.Context, sessionID string) (domain.CartSnapshot, error) {
	m.lastSession = sessionID
	return m.snapshot()
}

func (m *MockCartService) Checkout(ctx context.Context, sessionID string, req *domain.CheckoutRequest) (*domain.Order, error) {
	m.lastSession = sessionID
	if m.checkoutFunc != nil {
		return m.checkoutFunc(ctx, sessionID, req)
	}
	return &domain.Order{ID: "order-1", SessionID: sessionID, Customer: *req, PlacedAt: time.Now()}, nil
}

// MockSessionService for testing
type MockSessionService struct {
	err error
}

func (m *MockSessionService) Issue() (*service.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.Session{ID: "sess-new", Token: "tok-new", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *MockSessionService) Validate(token string) (*service.SessionClaims, error) {
	return nil, service.ErrInvalidToken
}
