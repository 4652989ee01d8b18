// Package config 负责加载应用配置：默认值 → YAML 文件（可选）→ .env → 环境变量。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile 指定 YAML 配置文件路径的环境变量
const EnvConfigFile = "SHOP_CONFIG_FILE"

// Config 应用整体配置
type Config struct {
	App        AppConfig        `yaml:"app"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Migrations MigrationsConfig `yaml:"migrations"`
	Cache      CacheConfig      `yaml:"cache"`
	Redis      RedisConfig      `yaml:"redis"`
	Remote     RemoteConfig     `yaml:"remote"`
	Session    SessionConfig    `yaml:"session"`
	Cart       CartConfig       `yaml:"cart"`
	CORS       CORSConfig       `yaml:"cors"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	MQ         MQConfig         `yaml:"mq"`
}

// AppConfig 服务基础配置
type AppConfig struct {
	Name            string        `yaml:"name"`
	Env             string        `yaml:"env"` // dev, test, prod
	Version         string        `yaml:"version"`
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string `yaml:"level"`    // debug, info, warn, error
	Encoding string `yaml:"encoding"` // json, console
}

// DatabaseConfig 本地商品库配置
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql 或 sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
	Path     string `yaml:"path"` // sqlite 文件路径
}

// MigrationsConfig 数据库迁移配置
type MigrationsConfig struct {
	Dir string `yaml:"dir"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Type    string        `yaml:"type"` // redis, memory
	TTL     time.Duration `yaml:"ttl"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RemoteConfig 远程商品 API 配置
type RemoteConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// SessionConfig 购物会话令牌配置
type SessionConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// CartConfig 购物车快照配置
type CartConfig struct {
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// RateLimitConfig 写接口限流配置（仅在 Redis 可用时生效）
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Rate    int64         `yaml:"rate"`
	Burst   int64         `yaml:"burst"`
	Window  time.Duration `yaml:"window"`
}

// MQConfig 订单事件消息队列配置
type MQConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	Exchange string `yaml:"exchange"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:            "shopfront",
			Env:             "dev",
			Version:         "0.1.0",
			Port:            8080,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info", Encoding: "json"},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Host:   "127.0.0.1",
			Port:   3306,
			User:   "root",
			DBName: "shopfront",
			Path:   "shopfront.db",
		},
		Migrations: MigrationsConfig{Dir: "migrations/sqlite"},
		Cache:      CacheConfig{Enabled: true, Type: "memory", TTL: 5 * time.Minute},
		Redis:      RedisConfig{Host: "127.0.0.1", Port: 6379},
		Remote: RemoteConfig{
			BaseURL:  "https://fakestoreapi.com",
			Timeout:  10 * time.Second,
			CacheTTL: 2 * time.Minute,
		},
		Session: SessionConfig{TTL: 30 * 24 * time.Hour},
		Cart:    CartConfig{SnapshotTTL: 30 * 24 * time.Hour},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID", "X-Session-Token", "X-Idempotency-Key"},
		},
		RateLimit: RateLimitConfig{Enabled: true, Rate: 60, Burst: 30, Window: time.Minute},
		MQ: MQConfig{
			Host:     "127.0.0.1",
			Port:     5672,
			Username: "guest",
			Password: "guest",
			VHost:    "/",
			Exchange: "shop.orders",
		},
	}
}

// Load 加载配置并校验
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	// .env 文件可选，不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv 使用环境变量覆盖配置
func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	num64 := func(key string, dst *int64) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok {
			var out []string
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			*dst = out
		}
	}

	str("APP_NAME", &c.App.Name)
	str("APP_ENV", &c.App.Env)
	str("APP_VERSION", &c.App.Version)
	num("APP_PORT", &c.App.Port)
	dur("APP_REQUEST_TIMEOUT", &c.App.RequestTimeout)
	dur("APP_SHUTDOWN_TIMEOUT", &c.App.ShutdownTimeout)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_ENCODING", &c.Log.Encoding)

	str("DB_DRIVER", &c.Database.Driver)
	str("DB_HOST", &c.Database.Host)
	num("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.DBName)
	str("DB_PATH", &c.Database.Path)
	str("MIGRATIONS_DIR", &c.Migrations.Dir)

	flag("CACHE_ENABLED", &c.Cache.Enabled)
	str("CACHE_TYPE", &c.Cache.Type)
	dur("CACHE_TTL", &c.Cache.TTL)

	str("REDIS_HOST", &c.Redis.Host)
	num("REDIS_PORT", &c.Redis.Port)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)

	str("REMOTE_BASE_URL", &c.Remote.BaseURL)
	dur("REMOTE_TIMEOUT", &c.Remote.Timeout)
	dur("REMOTE_CACHE_TTL", &c.Remote.CacheTTL)

	str("SESSION_SECRET", &c.Session.Secret)
	dur("SESSION_TTL", &c.Session.TTL)
	dur("CART_SNAPSHOT_TTL", &c.Cart.SnapshotTTL)

	list("CORS_ALLOWED_ORIGINS", &c.CORS.AllowedOrigins)
	list("CORS_ALLOWED_METHODS", &c.CORS.AllowedMethods)
	list("CORS_ALLOWED_HEADERS", &c.CORS.AllowedHeaders)

	flag("RATE_LIMIT_ENABLED", &c.RateLimit.Enabled)
	num64("RATE_LIMIT_RATE", &c.RateLimit.Rate)
	num64("RATE_LIMIT_BURST", &c.RateLimit.Burst)
	dur("RATE_LIMIT_WINDOW", &c.RateLimit.Window)

	flag("MQ_ENABLED", &c.MQ.Enabled)
	str("MQ_HOST", &c.MQ.Host)
	num("MQ_PORT", &c.MQ.Port)
	str("MQ_USERNAME", &c.MQ.Username)
	str("MQ_PASSWORD", &c.MQ.Password)
	str("MQ_VHOST", &c.MQ.VHost)
	str("MQ_EXCHANGE", &c.MQ.Exchange)

	return errors.Join(errs...)
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app port must be between 1 and 65535, got %d", c.App.Port)
	}
	if c.App.RequestTimeout <= 0 {
		return errors.New("app request timeout must be positive")
	}
	switch c.Database.Driver {
	case "mysql":
		if c.Database.Host == "" || c.Database.DBName == "" {
			return errors.New("mysql requires host and db name")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("sqlite requires a database path")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Remote.BaseURL == "" {
		return errors.New("remote base url is required")
	}
	// 生产环境必须显式设置会话密钥
	if c.Session.Secret == "" {
		if c.App.Env == "prod" {
			return errors.New("SESSION_SECRET is required in prod")
		}
		c.Session.Secret = "dev-insecure-session-secret"
	}
	if c.Session.TTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0 || c.RateLimit.Window < time.Second) {
		return errors.New("rate limit requires positive rate, burst and a window of at least 1s")
	}
	if c.MQ.Enabled && c.MQ.Exchange == "" {
		return errors.New("mq exchange is required when mq is enabled")
	}
	return nil
}
