// Package limiter 限流中间件实现
package limiter

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/middleware"
	"github.com/MorseWayne/shopfront/internal/resp"
)

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	// 限流器
	Limiter Limiter

	// Key生成函数
	KeyGenerator func(*gin.Context) string

	// 限流器异常处理函数，默认放行
	ErrorHandler func(*gin.Context, error)

	// 限流回调函数
	OnLimitReached func(*gin.Context, *LimitResult)

	// 是否跳过限流检查
	Skip func(*gin.Context) bool

	// 响应头配置
	Headers *HeaderConfig

	// 单次限流检查的超时
	Timeout time.Duration

	Logger *zap.Logger
}

// HeaderConfig 响应头配置
type HeaderConfig struct {
	// 是否添加限流头
	Enable bool

	// 限流相关头名称
	LimitHeader      string // X-RateLimit-Limit
	RemainingHeader  string // X-RateLimit-Remaining
	RetryAfterHeader string // Retry-After
}

// DefaultHeaderConfig 默认头配置
func DefaultHeaderConfig() *HeaderConfig {
	return &HeaderConfig{
		Enable:           true,
		LimitHeader:      "X-RateLimit-Limit",
		RemainingHeader:  "X-RateLimit-Remaining",
		RetryAfterHeader: "Retry-After",
	}
}

// DefaultKeyGenerator 默认Key生成器（基于IP）
func DefaultKeyGenerator(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// SessionKeyGenerator 会话Key生成器，无会话时退化为IP
func SessionKeyGenerator(c *gin.Context) string {
	if sid := middleware.SessionIDFromContext(c.Request.Context()); sid != "" {
		return fmt.Sprintf("session:%s", sid)
	}
	return DefaultKeyGenerator(c)
}

// RateLimitMiddleware 创建限流中间件
func RateLimitMiddleware(config *MiddlewareConfig) gin.HandlerFunc {
	// 设置默认值
	if config.KeyGenerator == nil {
		config.KeyGenerator = DefaultKeyGenerator
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = failOpen(config.Logger)
	}
	if config.OnLimitReached == nil {
		config.OnLimitReached = defaultOnLimitReached
	}
	if config.Headers == nil {
		config.Headers = DefaultHeaderConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Second
	}

	return func(c *gin.Context) {
		// 检查是否跳过限流
		if config.Skip != nil && config.Skip(c) {
			c.Next()
			return
		}

		key := config.KeyGenerator(c)

		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Timeout)
		result, err := config.Limiter.Allow(ctx, key)
		cancel()
		if err != nil {
			config.ErrorHandler(c, err)
			return
		}

		if config.Headers.Enable {
			setRateLimitHeaders(c, result, config.Headers)
		}

		if !result.Allowed {
			config.Logger.Info("rate limit reached",
				zap.String("request_id", middleware.RequestIDFromContext(c.Request.Context())),
				zap.String("key", key),
				zap.Duration("retry_after", result.RetryAfter),
			)
			config.OnLimitReached(c, result)
			c.Abort()
			return
		}

		c.Next()
	}
}

// setRateLimitHeaders 设置限流相关的响应头
func setRateLimitHeaders(c *gin.Context, result *LimitResult, headers *HeaderConfig) {
	if headers.LimitHeader != "" && result.Limit > 0 {
		c.Header(headers.LimitHeader, strconv.FormatInt(result.Limit, 10))
	}

	if headers.RemainingHeader != "" {
		c.Header(headers.RemainingHeader, strconv.FormatInt(result.Remaining, 10))
	}

	if headers.RetryAfterHeader != "" && result.RetryAfter > 0 {
		// Retry-After 以秒为单位，向上取整
		secs := int64(math.Ceil(result.RetryAfter.Seconds()))
		c.Header(headers.RetryAfterHeader, strconv.FormatInt(secs, 10))
	}
}

// failOpen 限流器不可用时记录日志并放行请求
func failOpen(logger *zap.Logger) func(*gin.Context, error) {
	return func(c *gin.Context, err error) {
		logger.Warn("rate limiter unavailable, request passed through",
			zap.String("request_id", middleware.RequestIDFromContext(c.Request.Context())),
			zap.Error(err),
		)
		c.Next()
	}
}

// defaultOnLimitReached 默认限流回调
func defaultOnLimitReached(c *gin.Context, _ *LimitResult) {
	resp.Error(c.Writer, http.StatusTooManyRequests, resp.CodeTooMany,
		"too many requests, please retry later", middleware.RequestIDFromContext(c.Request.Context()), "")
}

// WriteRateLimitMiddleware 写接口限流：按会话计数，只对非 GET 请求生效
func WriteRateLimitMiddleware(limiter Limiter, logger *zap.Logger) gin.HandlerFunc {
	return RateLimitMiddleware(&MiddlewareConfig{
		Limiter:      limiter,
		KeyGenerator: SessionKeyGenerator,
		Skip: func(c *gin.Context) bool {
			m := c.Request.Method
			return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
		},
		Headers: DefaultHeaderConfig(),
		Logger:  logger,
	})
}
