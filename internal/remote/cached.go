package remote

import (
	"context"
	"time"

	"github.com/MorseWayne/shopfront/internal/cache"
	"github.com/MorseWayne/shopfront/internal/domain"
)

// 缓存键
const (
	productsCacheKey   = "remote:products"
	categoriesCacheKey = "remote:categories"
)

// CachedSource 带缓存的远程数据源：列表与分类响应在 TTL 内复用，避免每次加载都访问远程接口
type CachedSource struct {
	source Source
	cache  cache.Cache
	ttl    time.Duration
}

// NewCachedSource 创建带缓存的数据源
func NewCachedSource(source Source, c cache.Cache, ttl time.Duration) *CachedSource {
	return &CachedSource{source: source, cache: c, ttl: ttl}
}

func (s *CachedSource) Products(ctx context.Context) ([]*domain.Product, error) {
	return cached(ctx, s, productsCacheKey, s.source.Products)
}

func (s *CachedSource) Categories(ctx context.Context) ([]string, error) {
	return cached(ctx, s, categoriesCacheKey, s.source.Categories)
}

// Product 单个商品不缓存
func (s *CachedSource) Product(ctx context.Context, id string) (*domain.Product, error) {
	return s.source.Product(ctx, id)
}

// Invalidate 清除列表与分类缓存，强制下次加载访问远程接口
func (s *CachedSource) Invalidate(ctx context.Context) error {
	return s.cache.Del(ctx, productsCacheKey, categoriesCacheKey)
}

func cached[T any](ctx context.Context, s *CachedSource, key string, load func(context.Context) (T, error)) (T, error) {
	var v T
	if err := s.cache.Get(ctx, key, &v); err == nil {
		return v, nil
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	_ = s.cache.Set(ctx, key, v, s.ttl)
	return v, nil
}
