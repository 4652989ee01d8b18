// Package middleware 提供幂等性中间件
package middleware

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/cache"
	"github.com/MorseWayne/shopfront/internal/resp"
)

// HeaderIdempotencyKey 幂等键请求头
const HeaderIdempotencyKey = "X-Idempotency-Key"

// IdempotencyConfig 幂等性中间件配置
type IdempotencyConfig struct {
	// 幂等键存储，键以 SetNX 占位
	Store cache.Cache

	// 幂等键头名称
	IdempotencyKeyHeader string

	// 跳过的请求方法
	SkipMethods []string

	// 幂等键保留时长
	CacheTTL time.Duration

	// 重复请求处理函数
	ErrorHandler func(*gin.Context)

	Logger *zap.Logger
}

// DefaultIdempotencyConfig 默认幂等性配置
func DefaultIdempotencyConfig(store cache.Cache, logger *zap.Logger) *IdempotencyConfig {
	return &IdempotencyConfig{
		Store:                store,
		IdempotencyKeyHeader: HeaderIdempotencyKey,
		SkipMethods:          []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		CacheTTL:             24 * time.Hour,
		ErrorHandler:         defaultIdempotencyErrorHandler,
		Logger:               logger,
	}
}

// IdempotencyMiddleware 幂等性中间件。
// 请求携带幂等键时，以 会话+键 为粒度占位；同一键的重复请求返回 409。
// 处理失败（状态码 >= 400）时释放占位，允许客户端用同一键重试。
// 存储不可用时放行请求。
func IdempotencyMiddleware(cfg *IdempotencyConfig) gin.HandlerFunc {
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultIdempotencyErrorHandler
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		if slices.Contains(cfg.SkipMethods, c.Request.Method) {
			c.Next()
			return
		}

		key := c.GetHeader(cfg.IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}

		storeKey := idempotencyStoreKey(c.GetString(GinKeySessionID), key)
		ctx := c.Request.Context()
		acquired, err := cfg.Store.SetNX(ctx, storeKey, c.Request.URL.Path, cfg.CacheTTL)
		if err != nil {
			cfg.Logger.Warn("idempotency store unavailable, request passed through",
				zap.String("request_id", RequestIDFromContext(ctx)),
				zap.Error(err),
			)
			c.Next()
			return
		}
		if !acquired {
			cfg.Logger.Info("duplicate request rejected",
				zap.String("request_id", RequestIDFromContext(ctx)),
				zap.String("idempotency_key", key),
			)
			cfg.ErrorHandler(c)
			c.Abort()
			return
		}

		c.Set("idempotency_key", key)
		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if err := cfg.Store.Del(context.WithoutCancel(ctx), storeKey); err != nil {
				cfg.Logger.Warn("release idempotency key failed", zap.String("idempotency_key", key), zap.Error(err))
			}
		}
	}
}

func idempotencyStoreKey(sessionID, key string) string {
	return "idempotency:" + sessionID + ":" + key
}

// defaultIdempotencyErrorHandler 默认重复请求处理器
func defaultIdempotencyErrorHandler(c *gin.Context) {
	resp.Error(c.Writer, http.StatusConflict, resp.CodeConflict,
		"duplicate request", RequestIDFromContext(c.Request.Context()), "")
}
