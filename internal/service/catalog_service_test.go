package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/domain"
)

var fixedRating = &domain.Rating{Rate: 4.2, Count: 77}

func newTestCatalog(local *mockLocalRepo, source *mockRemoteSource) *CatalogService {
	s := NewCatalogService(local, source, zap.NewNop())
	s.rater = func() *domain.Rating { r := *fixedRating; return &r }
	return s
}

func remoteProducts() []*domain.Product {
	return []*domain.Product{
		{ID: "1", Title: "Backpack", Category: "men's clothing", Price: 109.95, Rating: &domain.Rating{Rate: 3.9, Count: 120}},
		{ID: "2", Title: "Ring", Category: "jewelery", Price: 9.99},
		{ID: "3", Title: "SSD", Category: "electronics", Price: 64},
	}
}

func localProducts() []*domain.Product {
	return []*domain.Product{
		{ID: "local-1", Title: "Mug", Category: "Home", Price: 12, IsLocal: true},
		{ID: "local-2", Title: "Scarf", Category: "jewelery", Price: 20, IsLocal: true, Rating: &domain.Rating{Rate: 5, Count: 1}},
	}
}

func productIDs(products []*domain.Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestCatalogService_LoadCatalog(t *testing.T) {
	local := newMockLocalRepo(localProducts()...)
	source := &mockRemoteSource{products: remoteProducts()}
	s := newTestCatalog(local, source)

	products, err := s.LoadCatalog(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"local-1", "local-2", "1", "2", "3"}, productIDs(products))
	for _, p := range products {
		assert.Equal(t, domain.IsLocalID(p.ID), p.IsLocal, p.ID)
		require.NotNil(t, p.Rating, p.ID)
	}
	// 已有评分保留，缺失评分补齐
	assert.Equal(t, &domain.Rating{Rate: 3.9, Count: 120}, products[2].Rating)
	assert.Equal(t, fixedRating, products[3].Rating)
	assert.Equal(t, &domain.Rating{Rate: 5, Count: 1}, products[1].Rating)
}

func TestCatalogService_LoadCatalogDuplicates(t *testing.T) {
	local := newMockLocalRepo(
		&domain.Product{ID: "2", Title: "Local Ring", Category: "jewelery"},
		&domain.Product{ID: "local-1", Title: "Mug"},
		&domain.Product{ID: "local-1", Title: "Mug copy"},
	)
	source := &mockRemoteSource{products: append(remoteProducts(), &domain.Product{ID: "1", Title: "dup"})}
	s := newTestCatalog(local, source)

	products, err := s.LoadCatalog(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"2", "local-1", "1", "3"}, productIDs(products))
	assert.Equal(t, "Local Ring", products[0].Title)
	assert.True(t, products[0].IsLocal)
	assert.Equal(t, "Mug", products[1].Title)
	assert.Equal(t, "Backpack", products[2].Title)
}

func TestCatalogService_LoadCatalogEmptySources(t *testing.T) {
	s := newTestCatalog(newMockLocalRepo(), &mockRemoteSource{})
	products, err := s.LoadCatalog(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestCatalogService_LoadFailureKeepsPrevious(t *testing.T) {
	tests := []struct {
		name       string
		breakIt    func(local *mockLocalRepo, source *mockRemoteSource)
		wantSource string
	}{
		{name: "remote down", breakIt: func(_ *mockLocalRepo, s *mockRemoteSource) { s.setFail(true) }, wantSource: SourceRemote},
		{name: "local store down", breakIt: func(l *mockLocalRepo, _ *mockRemoteSource) {
			l.mu.Lock()
			l.failGet = true
			l.mu.Unlock()
		}, wantSource: SourceLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := newMockLocalRepo(localProducts()...)
			source := &mockRemoteSource{products: remoteProducts()}
			s := newTestCatalog(local, source)
			ctx := context.Background()

			before, err := s.LoadCatalog(ctx)
			require.NoError(t, err)

			tt.breakIt(local, source)
			_, err = s.LoadCatalog(ctx)
			var loadErr *domain.CatalogLoadError
			require.True(t, errors.As(err, &loadErr), "got %v", err)
			assert.Equal(t, tt.wantSource, loadErr.Source)
			assert.ErrorIs(t, err, errBoom)

			after, err := s.Products(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(before, after))
		})
	}
}

func TestCatalogService_FirstLoadFailure(t *testing.T) {
	s := newTestCatalog(newMockLocalRepo(), &mockRemoteSource{fail: true})
	_, err := s.Products(context.Background(), "")
	var loadErr *domain.CatalogLoadError
	require.True(t, errors.As(err, &loadErr))
}

func TestCatalogService_ConcurrentLoadsCollapse(t *testing.T) {
	source := &mockRemoteSource{
		products: remoteProducts(),
		block:    make(chan struct{}),
		entered:  make(chan struct{}, 1),
	}
	s := newTestCatalog(newMockLocalRepo(), source)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]*domain.Product, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			products, err := s.LoadCatalog(context.Background())
			if err == nil {
				results[i] = products
			}
		}()
	}

	<-source.entered
	time.Sleep(100 * time.Millisecond)
	close(source.block)
	wg.Wait()

	assert.Equal(t, 1, source.callCount())
	for _, r := range results {
		assert.Len(t, r, 3)
	}
}

func TestCatalogService_Products(t *testing.T) {
	source := &mockRemoteSource{products: remoteProducts()}
	s := newTestCatalog(newMockLocalRepo(localProducts()...), source)
	ctx := context.Background()

	all, err := s.Products(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)

	jewelery, err := s.Products(ctx, "JEWELERY")
	require.NoError(t, err)
	assert.Equal(t, []string{"local-2", "2"}, productIDs(jewelery))

	none, err := s.Products(ctx, "toys")
	require.NoError(t, err)
	assert.Empty(t, none)

	// 过滤不会触发新的远程请求
	assert.Equal(t, 1, source.callCount())
}

func TestCatalogService_LocalProducts(t *testing.T) {
	local := newMockLocalRepo(localProducts()...)
	source := &mockRemoteSource{products: remoteProducts()}
	s := newTestCatalog(local, source)
	ctx := context.Background()

	all, err := s.LocalProducts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"local-1", "local-2"}, productIDs(all))
	for _, p := range all {
		assert.True(t, p.IsLocal)
	}

	home, err := s.LocalProducts(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, []string{"local-1"}, productIDs(home))

	// 本地列表不访问远程接口
	assert.Zero(t, source.callCount())

	local.failGet = true
	_, err = s.LocalProducts(ctx, "")
	var pe *domain.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "list local products", pe.Op)
}

func TestCatalogService_Product(t *testing.T) {
	source := &mockRemoteSource{products: remoteProducts()}
	s := newTestCatalog(newMockLocalRepo(localProducts()...), source)
	ctx := context.Background()

	p, err := s.Product(ctx, "local-1")
	require.NoError(t, err)
	assert.Equal(t, "Mug", p.Title)

	// 列表中不存在的远程商品回源查询
	source.mu.Lock()
	source.products = append(source.products, &domain.Product{ID: "20", Title: "Late"})
	source.mu.Unlock()
	p, err = s.Product(ctx, "20")
	require.NoError(t, err)
	assert.Equal(t, "Late", p.Title)
	assert.Equal(t, fixedRating, p.Rating)
	assert.False(t, p.IsLocal)

	for _, id := range []string{"99", "local-99"} {
		_, err = s.Product(ctx, id)
		var nf *domain.NotFoundError
		require.True(t, errors.As(err, &nf), id)
		assert.Equal(t, id, nf.ID)
	}
}

func TestCatalogService_Categories(t *testing.T) {
	source := &mockRemoteSource{
		products:   remoteProducts(),
		categories: []string{"electronics", "jewelery", "Electronics"},
	}
	s := newTestCatalog(newMockLocalRepo(localProducts()...), source)

	categories, err := s.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"electronics", "jewelery", "Home", "men's clothing"}, categories)
}

func TestCatalogService_CreateLocalProduct(t *testing.T) {
	price := 15.0
	valid := &domain.ProductInput{
		Title:       "Candle",
		Description: "Soy wax",
		Category:    "home",
		Price:       &price,
		Image:       "data:image/png;base64,aGVsbG8=",
	}

	t.Run("validation happens before any store call", func(t *testing.T) {
		local := newMockLocalRepo()
		s := newTestCatalog(local, &mockRemoteSource{})
		_, err := s.CreateLocalProduct(context.Background(), &domain.ProductInput{Title: "x"})
		var verr *domain.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "price", verr.Field)
		assert.Zero(t, local.callCount("Add"))
	})

	t.Run("store failure", func(t *testing.T) {
		local := newMockLocalRepo()
		local.failAdd = true
		s := newTestCatalog(local, &mockRemoteSource{})
		_, err := s.CreateLocalProduct(context.Background(), valid)
		var perr *domain.PersistenceError
		require.True(t, errors.As(err, &perr))
	})

	t.Run("inserted at head", func(t *testing.T) {
		local := newMockLocalRepo(localProducts()...)
		s := newTestCatalog(local, &mockRemoteSource{products: remoteProducts()})
		ctx := context.Background()
		_, err := s.LoadCatalog(ctx)
		require.NoError(t, err)

		created, err := s.CreateLocalProduct(ctx, valid)
		require.NoError(t, err)
		assert.Equal(t, "local-3", created.ID)
		assert.True(t, created.IsLocal)
		assert.Equal(t, fixedRating, created.Rating)

		all, err := s.Products(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"local-3", "local-1", "local-2", "1", "2", "3"}, productIDs(all))
	})
}

func TestCatalogService_UpdateLocalProduct(t *testing.T) {
	price := 30.0
	in := &domain.ProductInput{
		Title:       "Big Mug",
		Description: "500ml",
		Category:    "Home",
		Price:       &price,
		Image:       "https://example.com/mug.png",
	}

	t.Run("remote id is read-only and never touches the store", func(t *testing.T) {
		local := newMockLocalRepo(localProducts()...)
		s := newTestCatalog(local, &mockRemoteSource{products: remoteProducts()})
		_, err := s.UpdateLocalProduct(context.Background(), "1", in)
		var roErr *domain.ReadOnlyError
		require.True(t, errors.As(err, &roErr))
		assert.Zero(t, local.callCount("GetByID"))
		assert.Zero(t, local.callCount("Put"))
	})

	t.Run("missing id leaves store untouched", func(t *testing.T) {
		local := newMockLocalRepo(localProducts()...)
		s := newTestCatalog(local, &mockRemoteSource{})
		_, err := s.UpdateLocalProduct(context.Background(), "local-42", in)
		var nf *domain.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Zero(t, local.callCount("Put"))
	})

	t.Run("invalid input", func(t *testing.T) {
		local := newMockLocalRepo(localProducts()...)
		s := newTestCatalog(local, &mockRemoteSource{})
		_, err := s.UpdateLocalProduct(context.Background(), "local-1", &domain.ProductInput{})
		var verr *domain.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Zero(t, local.callCount("GetByID"))
	})

	t.Run("merges and replaces in memory", func(t *testing.T) {
		local := newMockLocalRepo(localProducts()...)
		s := newTestCatalog(local, &mockRemoteSource{products: remoteProducts()})
		ctx := context.Background()
		_, err := s.LoadCatalog(ctx)
		require.NoError(t, err)

		updated, err := s.UpdateLocalProduct(ctx, "local-2", in)
		require.NoError(t, err)
		assert.Equal(t, "Big Mug", updated.Title)
		assert.Equal(t, &domain.Rating{Rate: 5, Count: 1}, updated.Rating)

		stored, err := local.GetByID(ctx, "local-2")
		require.NoError(t, err)
		assert.Equal(t, "Big Mug", stored.Title)

		p, err := s.Product(ctx, "local-2")
		require.NoError(t, err)
		assert.Equal(t, 30.0, p.Price)

		all, err := s.Products(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"local-1", "local-2", "1", "2", "3"}, productIDs(all))
	})

	t.Run("store failure", func(t *testing.T) {
		local := newMockLocalRepo(localProducts()...)
		local.failPut = true
		s := newTestCatalog(local, &mockRemoteSource{})
		_, err := s.UpdateLocalProduct(context.Background(), "local-1", in)
		var perr *domain.PersistenceError
		require.True(t, errors.As(err, &perr))
	})
}

func TestCatalogService_DeleteLocalProduct(t *testing.T) {
	local := newMockLocalRepo(localProducts()...)
	s := newTestCatalog(local, &mockRemoteSource{products: remoteProducts()})
	ctx := context.Background()
	_, err := s.LoadCatalog(ctx)
	require.NoError(t, err)

	var roErr *domain.ReadOnlyError
	require.True(t, errors.As(s.DeleteLocalProduct(ctx, "2"), &roErr))
	assert.Zero(t, local.callCount("Delete"))

	var nf *domain.NotFoundError
	require.True(t, errors.As(s.DeleteLocalProduct(ctx, "local-9"), &nf))
	assert.Zero(t, local.callCount("Delete"))

	require.NoError(t, s.DeleteLocalProduct(ctx, "local-1"))
	all, err := s.Products(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"local-2", "1", "2", "3"}, productIDs(all))

	_, err = s.Product(ctx, "local-1")
	require.True(t, errors.As(err, &nf))
}

func TestCatalogService_Reload(t *testing.T) {
	source := &mockRemoteSource{products: remoteProducts()}
	s := newTestCatalog(newMockLocalRepo(), source)
	ctx := context.Background()

	_, err := s.Products(ctx, "")
	require.NoError(t, err)

	source.mu.Lock()
	source.products = source.products[:1]
	source.mu.Unlock()

	products, err := s.Reload(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Equal(t, 2, source.callCount())
}
