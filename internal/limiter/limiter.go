// Package limiter 提供基于 Redis 令牌桶的写接口限流
package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/MorseWayne/shopfront/internal/config"
)

// LimitResult 限流结果
type LimitResult struct {
	Allowed    bool          `json:"allowed"`     // 是否允许通过
	Limit      int64         `json:"limit"`       // 桶容量
	Remaining  int64         `json:"remaining"`   // 剩余配额
	RetryAfter time.Duration `json:"retry_after"` // 建议重试时间
}

// Limiter 限流器接口
type Limiter interface {
	// Allow 检查是否允许请求通过
	Allow(ctx context.Context, key string) (*LimitResult, error)

	// AllowN 检查是否允许N个请求通过
	AllowN(ctx context.Context, key string, n int64) (*LimitResult, error)

	// Reset 重置限流状态
	Reset(ctx context.Context, key string) error
}

// Config 限流配置
type Config struct {
	Rate      int64         `json:"rate"`       // 每个时间窗口补充的令牌数
	Window    time.Duration `json:"window"`     // 时间窗口
	Burst     int64         `json:"burst"`      // 桶容量
	KeyPrefix string        `json:"key_prefix"` // Key前缀
}

// FromAppConfig 从应用配置构建限流配置
func FromAppConfig(cfg config.RateLimitConfig) *Config {
	return &Config{
		Rate:   cfg.Rate,
		Window: cfg.Window,
		Burst:  cfg.Burst,
	}
}

// Validate 校验限流配置
func (c *Config) Validate() error {
	if c.Rate <= 0 {
		return errors.New("rate must be positive")
	}
	if c.Burst <= 0 {
		return errors.New("burst must be positive")
	}
	if c.Window < time.Millisecond {
		return errors.New("window must be at least 1ms")
	}
	return nil
}
