package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/domain"
	"github.com/MorseWayne/shopfront/internal/resp"
)

// CatalogServiceInterface 定义商品目录服务接口
type CatalogServiceInterface interface {
	Products(ctx context.Context, category string) ([]*domain.Product, error)
	LocalProducts(ctx context.Context, category string) ([]*domain.Product, error)
	Product(ctx context.Context, id string) (*domain.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Reload(ctx context.Context) ([]*domain.Product, error)
	CreateLocalProduct(ctx context.Context, in *domain.ProductInput) (*domain.Product, error)
	UpdateLocalProduct(ctx context.Context, id string, in *domain.ProductInput) (*domain.Product, error)
	DeleteLocalProduct(ctx context.Context, id string) error
}

// ProductList 商品列表响应
type ProductList struct {
	Items    []*domain.Product `json:"items"`
	Total    int               `json:"total"`
	Category string            `json:"category,omitempty"`
}

// CatalogHandler 商品目录处理器
type CatalogHandler struct {
	catalog CatalogServiceInterface
	logger  *zap.Logger
}

// NewCatalogHandler 创建商品目录处理器
func NewCatalogHandler(catalog CatalogServiceInterface, logger *zap.Logger) *CatalogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// 商品来源过滤
const (
	sourceAll   = "all"
	sourceLocal = "local"
)

// ListProducts 商品列表，source=local 时只返回本地商品
// GET /api/v1/products?category=&source=
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	category := strings.TrimSpace(c.Query("category"))

	var (
		products []*domain.Product
		err      error
	)
	switch source := strings.ToLower(strings.TrimSpace(c.Query("source"))); source {
	case "", sourceAll:
		products, err = h.catalog.Products(c.Request.Context(), category)
	case sourceLocal:
		products, err = h.catalog.LocalProducts(c.Request.Context(), category)
	default:
		badRequest(c, "source must be all or local")
		return
	}
	if err != nil {
		writeError(c, h.logger, "list products", err)
		return
	}

	resp.OK(c.Writer, &ProductList{Items: products, Total: len(products), Category: category}, requestID(c), "")
}

// GetProduct 商品详情
// GET /api/v1/products/:id
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	product, err := h.catalog.Product(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get product", err)
		return
	}
	resp.OK(c.Writer, product, requestID(c), "")
}

// ListCategories 分类列表
// GET /api/v1/categories
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "list categories", err)
		return
	}
	resp.OK(c.Writer, &categories, requestID(c), "")
}

// ReloadCatalog 丢弃远程缓存并重新加载目录
// POST /api/v1/catalog/reload
func (h *CatalogHandler) ReloadCatalog(c *gin.Context) {
	products, err := h.catalog.Reload(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "reload catalog", err)
		return
	}

	h.logger.Info("catalog reloaded", zap.String("request_id", requestID(c)), zap.Int("products", len(products)))
	resp.OK(c.Writer, &ProductList{Items: products, Total: len(products)}, requestID(c), "")
}

// CreateProduct 新增本地商品
// POST /api/v1/products
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var in domain.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", requestID(c)), zap.Error(err))
		badRequest(c, "invalid request body")
		return
	}

	product, err := h.catalog.CreateLocalProduct(c.Request.Context(), &in)
	if err != nil {
		writeError(c, h.logger, "create product", err)
		return
	}
	resp.Created(c.Writer, product, requestID(c), "")
}

// UpdateProduct 更新本地商品，远程商品只读
// PUT /api/v1/products/:id
func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	var in domain.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", requestID(c)), zap.Error(err))
		badRequest(c, "invalid request body")
		return
	}

	product, err := h.catalog.UpdateLocalProduct(c.Request.Context(), c.Param("id"), &in)
	if err != nil {
		writeError(c, h.logger, "update product", err)
		return
	}
	resp.OK(c.Writer, product, requestID(c), "")
}

// DeleteProduct 删除本地商品，远程商品只读
// DELETE /api/v1/products/:id
func (h *CatalogHandler) DeleteProduct(c *gin.Context) {
	id := c.Param("id")
	if err := h.catalog.DeleteLocalProduct(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, "delete product", err)
		return
	}
	resp.WriteJSON(c.Writer, http.StatusOK, resp.CodeOK, "deleted", &map[string]string{"id": id}, requestID(c), "")
}
