package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/MorseWayne/shopfront/internal/cache"
	"github.com/MorseWayne/shopfront/internal/domain"
)

const localProductListCacheKey = "local_product:list"

// CachedLocalProductRepository 带缓存的本地商品仓储，写操作后清除相关缓存
type CachedLocalProductRepository struct {
	repo  LocalProductRepository
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedLocalProductRepository 创建带缓存的本地商品仓储
func NewCachedLocalProductRepository(repo LocalProductRepository, cache cache.Cache, ttl time.Duration) LocalProductRepository {
	return &CachedLocalProductRepository{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
	}
}

// Add 新增商品（清除列表缓存）
func (r *CachedLocalProductRepository) Add(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	created, err := r.repo.Add(ctx, product)
	if err != nil {
		return nil, err
	}

	r.cache.Del(ctx, localProductListCacheKey)
	return created, nil
}

// GetAll 获取全部商品（带缓存）
func (r *CachedLocalProductRepository) GetAll(ctx context.Context) ([]*domain.Product, error) {
	var products []*domain.Product
	if err := r.cache.Get(ctx, localProductListCacheKey, &products); err == nil {
		return products, nil
	}

	products, err := r.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	r.cache.Set(ctx, localProductListCacheKey, products, r.ttl)
	return products, nil
}

// GetByID 根据ID获取商品（带缓存）
func (r *CachedLocalProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	cacheKey := r.getProductCacheKey(id)

	var product domain.Product
	if err := r.cache.Get(ctx, cacheKey, &product); err == nil {
		return &product, nil
	}

	result, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	r.cache.Set(ctx, cacheKey, result, r.ttl)
	return result, nil
}

// Put 覆盖商品（清除相关缓存）
func (r *CachedLocalProductRepository) Put(ctx context.Context, product *domain.Product) error {
	if err := r.repo.Put(ctx, product); err != nil {
		return err
	}

	r.cache.Del(ctx, r.getProductCacheKey(product.ID), localProductListCacheKey)
	return nil
}

// Delete 删除商品（清除相关缓存）
func (r *CachedLocalProductRepository) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cache.Del(ctx, r.getProductCacheKey(id), localProductListCacheKey)
	return nil
}

func (r *CachedLocalProductRepository) getProductCacheKey(id string) string {
	return fmt.Sprintf("local_product:id:%s", id)
}
