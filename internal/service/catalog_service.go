package service

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/MorseWayne/shopfront/internal/domain"
	"github.com/MorseWayne/shopfront/internal/remote"
	"github.com/MorseWayne/shopfront/internal/repo"
)

// 目录加载来源
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// ProductLookup 按 ID 查找商品
type ProductLookup interface {
	Product(ctx context.Context, id string) (*domain.Product, error)
}

// CatalogService 聚合本地商品库与远程商品 API 的目录服务。
// 内存中的商品列表只会被整体替换，列表中的商品对象不会被原地修改。
type CatalogService struct {
	local  repo.LocalProductRepository
	remote remote.Source
	logger *zap.Logger
	rater  func() *domain.Rating

	mu       sync.RWMutex
	products []*domain.Product
	loaded   bool

	loads singleflight.Group
}

// NewCatalogService 创建目录服务
func NewCatalogService(local repo.LocalProductRepository, source remote.Source, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		local:  local,
		remote: source,
		logger: logger,
		rater:  domain.RandomRating,
	}
}

// LoadCatalog 并发拉取本地与远程商品并合并。
// 任一来源失败都返回 CatalogLoadError，并保留上一次成功加载的列表。并发调用会合并为一次加载。
func (s *CatalogService) LoadCatalog(ctx context.Context) ([]*domain.Product, error) {
	v, err, _ := s.loads.Do("catalog", func() (any, error) {
		// 合并后的加载不应随第一个调用方的取消而失败
		return s.load(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]*domain.Product)), nil
}

func (s *CatalogService) load(ctx context.Context) ([]*domain.Product, error) {
	var localProducts, remoteProducts []*domain.Product

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		products, err := s.local.GetAll(gctx)
		if err != nil {
			return &domain.CatalogLoadError{Source: SourceLocal, Err: err}
		}
		localProducts = products
		return nil
	})
	g.Go(func() error {
		products, err := s.remote.Products(gctx)
		if err != nil {
			return &domain.CatalogLoadError{Source: SourceRemote, Err: err}
		}
		remoteProducts = products
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("catalog load failed, keeping previous list", zap.Error(err))
		return nil, err
	}

	merged := s.merge(localProducts, remoteProducts)

	s.mu.Lock()
	s.products = merged
	s.loaded = true
	s.mu.Unlock()

	s.logger.Info("catalog loaded",
		zap.Int("local", len(localProducts)),
		zap.Int("remote", len(remoteProducts)),
		zap.Int("total", len(merged)),
	)
	return merged, nil
}

// merge 本地商品在前，按 ID 去重，同一 ID 以首次出现者为准
func (s *CatalogService) merge(local, remote []*domain.Product) []*domain.Product {
	seen := make(map[string]struct{}, len(local)+len(remote))
	merged := make([]*domain.Product, 0, len(local)+len(remote))

	add := func(p *domain.Product, isLocal bool) {
		if p == nil {
			return
		}
		if _, ok := seen[p.ID]; ok {
			return
		}
		seen[p.ID] = struct{}{}

		cp := p.Clone()
		cp.IsLocal = isLocal
		if cp.Rating == nil {
			cp.Rating = s.rater()
		}
		merged = append(merged, cp)
	}

	for _, p := range local {
		add(p, true)
	}
	for _, p := range remote {
		add(p, false)
	}
	return merged
}

// Reload 清除远程响应缓存后重新加载
func (s *CatalogService) Reload(ctx context.Context) ([]*domain.Product, error) {
	if inv, ok := s.remote.(interface{ Invalidate(context.Context) error }); ok {
		if err := inv.Invalidate(ctx); err != nil {
			s.logger.Warn("failed to invalidate remote cache", zap.Error(err))
		}
	}
	return s.LoadCatalog(ctx)
}

// ensureLoaded 首次访问时加载目录
func (s *CatalogService) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	_, err := s.LoadCatalog(ctx)
	return err
}

// Products 返回按分类过滤后的商品列表，过滤只作用于内存列表
func (s *CatalogService) Products(ctx context.Context, category string) ([]*domain.Product, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(domain.FilterByCategory(s.products, category)), nil
}

// LocalProducts 返回本地商品库中的商品，按分类过滤。直接读取本地库，不依赖远程接口。
func (s *CatalogService) LocalProducts(ctx context.Context, category string) ([]*domain.Product, error) {
	products, err := s.local.GetAll(ctx)
	if err != nil {
		s.logger.Error("failed to list local products", zap.Error(err))
		return nil, &domain.PersistenceError{Op: "list local products", Err: err}
	}

	result := make([]*domain.Product, 0, len(products))
	for _, p := range domain.FilterByCategory(products, category) {
		cp := p.Clone()
		cp.IsLocal = true
		result = append(result, cp)
	}
	return result, nil
}

// Product 获取单个商品：优先内存列表，其次本地库或远程接口
func (s *CatalogService) Product(ctx context.Context, id string) (*domain.Product, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	if p := s.find(id); p != nil {
		return p, nil
	}

	var (
		p   *domain.Product
		err error
	)
	if domain.IsLocalID(id) {
		p, err = s.local.GetByID(ctx, id)
		if err != nil {
			s.logger.Error("failed to get local product", zap.String("product_id", id), zap.Error(err))
			return nil, &domain.PersistenceError{Op: "get local product", Err: err}
		}
	} else {
		p, err = s.remote.Product(ctx, id)
		if err != nil {
			s.logger.Warn("failed to get remote product", zap.String("product_id", id), zap.Error(err))
			return nil, &domain.CatalogLoadError{Source: SourceRemote, Err: err}
		}
	}
	if p == nil {
		return nil, &domain.NotFoundError{Kind: "product", ID: id}
	}

	cp := p.Clone()
	cp.IsLocal = domain.IsLocalID(id)
	if cp.Rating == nil {
		cp.Rating = s.rater()
	}
	return cp, nil
}

// Categories 返回远程分类与列表中出现的分类的并集，大小写不敏感去重
func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	remoteCategories, err := s.remote.Categories(ctx)
	if err != nil {
		// 分类仍可从已加载的列表中得出
		s.logger.Warn("failed to get remote categories", zap.Error(err))
	}

	seen := make(map[string]struct{})
	categories := []string{}
	add := func(c string) {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		categories = append(categories, c)
	}

	for _, c := range remoteCategories {
		add(c)
	}
	s.mu.RLock()
	for _, p := range s.products {
		add(p.Category)
	}
	s.mu.RUnlock()

	return categories, nil
}

// CreateLocalProduct 校验后写入本地库，并插入到内存列表头部
func (s *CatalogService) CreateLocalProduct(ctx context.Context, in *domain.ProductInput) (*domain.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	product := &domain.Product{IsLocal: true}
	in.ApplyTo(product)
	if product.Rating == nil {
		product.Rating = s.rater()
	}

	created, err := s.local.Add(ctx, product)
	if err != nil {
		s.logger.Error("failed to add local product", zap.String("title", product.Title), zap.Error(err))
		return nil, &domain.PersistenceError{Op: "add local product", Err: err}
	}

	s.mu.Lock()
	if s.loaded {
		s.products = append([]*domain.Product{created}, s.products...)
	}
	s.mu.Unlock()

	s.logger.Info("local product created", zap.String("product_id", created.ID))
	return created.Clone(), nil
}

// UpdateLocalProduct 将输入合并到已有的本地商品上。远程商品只读，不会访问本地库。
func (s *CatalogService) UpdateLocalProduct(ctx context.Context, id string, in *domain.ProductInput) (*domain.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if !domain.IsLocalID(id) {
		return nil, &domain.ReadOnlyError{ID: id}
	}

	existing, err := s.local.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to get local product", zap.String("product_id", id), zap.Error(err))
		return nil, &domain.PersistenceError{Op: "get local product", Err: err}
	}
	if existing == nil {
		return nil, &domain.NotFoundError{Kind: "product", ID: id}
	}

	updated := existing.Clone()
	in.ApplyTo(updated)
	updated.ID = id
	updated.IsLocal = true

	if err := s.local.Put(ctx, updated); err != nil {
		s.logger.Error("failed to update local product", zap.String("product_id", id), zap.Error(err))
		return nil, &domain.PersistenceError{Op: "update local product", Err: err}
	}

	s.mu.Lock()
	if s.loaded {
		next := slices.Clone(s.products)
		if i := slices.IndexFunc(next, func(p *domain.Product) bool { return p.ID == id }); i >= 0 {
			next[i] = updated
		} else {
			next = append([]*domain.Product{updated}, next...)
		}
		s.products = next
	}
	s.mu.Unlock()

	s.logger.Info("local product updated", zap.String("product_id", id))
	return updated.Clone(), nil
}

// DeleteLocalProduct 删除本地商品。远程商品只读。
func (s *CatalogService) DeleteLocalProduct(ctx context.Context, id string) error {
	if !domain.IsLocalID(id) {
		return &domain.ReadOnlyError{ID: id}
	}

	existing, err := s.local.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to get local product", zap.String("product_id", id), zap.Error(err))
		return &domain.PersistenceError{Op: "get local product", Err: err}
	}
	if existing == nil {
		return &domain.NotFoundError{Kind: "product", ID: id}
	}

	if err := s.local.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete local product", zap.String("product_id", id), zap.Error(err))
		return &domain.PersistenceError{Op: "delete local product", Err: err}
	}

	s.mu.Lock()
	s.products = slices.DeleteFunc(slices.Clone(s.products), func(p *domain.Product) bool { return p.ID == id })
	s.mu.Unlock()

	s.logger.Info("local product deleted", zap.String("product_id", id))
	return nil
}

func (s *CatalogService) find(id string) *domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.ID == id {
			return p
		}
	}
	return nil
}
