// Package limiter 令牌桶限流器实现
package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScriptClient 令牌桶所需的 Redis 能力，*redis.Client 与 redis.Cmdable 均满足
type ScriptClient interface {
	redis.Scripter
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// TokenBucketLimiter 令牌桶限流器，状态保存在 Redis 哈希中，多实例共享
type TokenBucketLimiter struct {
	client    ScriptClient
	config    *Config
	keyPrefix string
	now       func() time.Time
}

// NewTokenBucketLimiter 创建令牌桶限流器
func NewTokenBucketLimiter(client ScriptClient, config *Config) (*TokenBucketLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if config == nil {
		return nil, errors.New("limiter config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid limiter config: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "limiter:tb"
	}

	return &TokenBucketLimiter{
		client:    client,
		config:    config,
		keyPrefix: prefix,
		now:       time.Now,
	}, nil
}

// tokenBucketScript 令牌按毫秒连续补充，令牌数以浮点保存
//
// KEYS[1]: 令牌桶key
// ARGV[1]: 容量(burst)  ARGV[2]: 每窗口补充数(rate)  ARGV[3]: 窗口(毫秒)
// ARGV[4]: 请求令牌数    ARGV[5]: 当前时间(毫秒)
// 返回 {是否允许, 剩余令牌(取整), 重试等待(毫秒)}
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])
local now = tonumber(ARGV[5])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or now

local elapsed = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + elapsed * rate / window)

local allowed = 0
local retry_after = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
else
    retry_after = math.ceil((requested - tokens) * window / rate)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', now)
redis.call('PEXPIRE', key, window * 2)

return {allowed, math.floor(tokens), retry_after}
`)

// getKey 生成Redis key
func (tb *TokenBucketLimiter) getKey(key string) string {
	return fmt.Sprintf("%s:%s", tb.keyPrefix, key)
}

// Allow 检查是否允许请求通过
func (tb *TokenBucketLimiter) Allow(ctx context.Context, key string) (*LimitResult, error) {
	return tb.AllowN(ctx, key, 1)
}

// AllowN 检查是否允许N个请求通过
func (tb *TokenBucketLimiter) AllowN(ctx context.Context, key string, n int64) (*LimitResult, error) {
	if n <= 0 {
		return nil, fmt.Errorf("token count must be positive, got %d", n)
	}

	values, err := tokenBucketScript.Run(ctx, tb.client,
		[]string{tb.getKey(key)},
		tb.config.Burst,
		tb.config.Rate,
		tb.config.Window.Milliseconds(),
		n,
		tb.now().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to execute token bucket script: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected script result length %d", len(values))
	}

	return &LimitResult{
		Allowed:    values[0] == 1,
		Limit:      tb.config.Burst,
		Remaining:  values[1],
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
	}, nil
}

// Reset 重置令牌桶
func (tb *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	if err := tb.client.Del(ctx, tb.getKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset token bucket: %w", err)
	}
	return nil
}
