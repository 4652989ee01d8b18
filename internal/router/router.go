// Package router 提供 HTTP 路由设置和中间件配置功能
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/api"
	"github.com/MorseWayne/shopfront/internal/cache"
	"github.com/MorseWayne/shopfront/internal/config"
	"github.com/MorseWayne/shopfront/internal/limiter"
	mw "github.com/MorseWayne/shopfront/internal/middleware"
	"github.com/MorseWayne/shopfront/internal/resp"
	"github.com/MorseWayne/shopfront/internal/service"
)

// Dependencies 包含路由设置所需的所有依赖
type Dependencies struct {
	CatalogHandler *api.CatalogHandler
	CartHandler    *api.CartHandler
	SessionHandler *api.SessionHandler
	HealthHandler  *api.HealthHandler
	SessionService service.SessionService

	// IdempotencyStore 结算幂等键存储
	IdempotencyStore cache.Cache

	// WriteLimiter 写接口限流器，为 nil 时不限流
	WriteLimiter limiter.Limiter
}

// Router 路由器接口
type Router interface {
	Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler
}

// GinRouter Gin路由器实现
type GinRouter struct {
	engine *gin.Engine
	deps   *Dependencies
	logger *zap.Logger
}

// New 创建新的路由器实例
func New() Router {
	return &GinRouter{}
}

// Setup 设置路由和中间件，返回包裹了标准库中间件链的处理器
func (r *GinRouter) Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler {
	// 根据环境设置 Gin 模式
	switch cfg.App.Env {
	case "prod":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r.engine = gin.New()
	r.engine.HandleMethodNotAllowed = true
	r.deps = deps
	r.logger = lg

	r.setupRoutes()

	// 构建中间件链：请求进入时执行顺序为 access log → CORS → timeout → recovery → request ID
	// 响应返回时执行顺序为 request ID → recovery → timeout → CORS → access log
	handler := mw.RequestID(r.engine)
	handler = mw.Recovery(lg)(handler)
	handler = mw.Timeout(cfg.App.RequestTimeout)(handler)
	handler = mw.CORS(mw.CORSConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
	})(handler)
	handler = mw.AccessLog(lg)(handler)

	return handler
}

// setupRoutes 设置所有路由
func (r *GinRouter) setupRoutes() {
	r.engine.NoRoute(r.notFound)
	r.engine.NoMethod(r.methodNotAllowed)

	// 健康检查
	r.engine.GET("/healthz", r.deps.HealthHandler.Healthz)

	v1 := r.engine.Group("/api/v1")

	// 显式开启新会话（不经过会话中间件）
	v1.POST("/session", r.deps.SessionHandler.IssueSession)

	shop := v1.Group("")
	shop.Use(mw.Session(r.deps.SessionService, r.logger))
	if r.deps.WriteLimiter != nil {
		shop.Use(limiter.WriteRateLimitMiddleware(r.deps.WriteLimiter, r.logger))
	}

	catalog := r.deps.CatalogHandler
	{
		shop.GET("/products", catalog.ListProducts)
		shop.GET("/products/:id", catalog.GetProduct)
		shop.GET("/categories", catalog.ListCategories)
		shop.POST("/catalog/reload", catalog.ReloadCatalog)

		shop.POST("/products", catalog.CreateProduct)
		shop.PUT("/products/:id", catalog.UpdateProduct)
		shop.DELETE("/products/:id", catalog.DeleteProduct)
	}

	cart := r.deps.CartHandler
	{
		shop.GET("/cart", cart.GetCart)
		shop.DELETE("/cart", cart.ClearCart)
		shop.POST("/cart/items", cart.AddItem)
		shop.PUT("/cart/items/:id", cart.UpdateItem)
		shop.POST("/cart/items/:id/decrease", cart.DecreaseItem)
		shop.DELETE("/cart/items/:id", cart.RemoveItem)

		store := r.deps.IdempotencyStore
		if store == nil {
			store = cache.NewNullCache()
		}
		idempotency := mw.IdempotencyMiddleware(mw.DefaultIdempotencyConfig(store, r.logger))
		shop.POST("/checkout", idempotency, cart.Checkout)
	}
}

// notFound 未匹配路由
func (r *GinRouter) notFound(c *gin.Context) {
	resp.Error(c.Writer, http.StatusNotFound, resp.CodeNotFound, "route not found",
		mw.RequestIDFromContext(c.Request.Context()), "")
}

// methodNotAllowed 方法不匹配
func (r *GinRouter) methodNotAllowed(c *gin.Context) {
	resp.Error(c.Writer, http.StatusMethodNotAllowed, resp.CodeInvalidParam, "method not allowed",
		mw.RequestIDFromContext(c.Request.Context()), "")
}
