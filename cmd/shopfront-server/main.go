package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/api"
	"github.com/MorseWayne/shopfront/internal/cache"
	"github.com/MorseWayne/shopfront/internal/config"
	"github.com/MorseWayne/shopfront/internal/database"
	"github.com/MorseWayne/shopfront/internal/limiter"
	"github.com/MorseWayne/shopfront/internal/logger"
	"github.com/MorseWayne/shopfront/internal/mq"
	"github.com/MorseWayne/shopfront/internal/remote"
	"github.com/MorseWayne/shopfront/internal/repo"
	"github.com/MorseWayne/shopfront/internal/router"
	"github.com/MorseWayne/shopfront/internal/service"
)

// AppDependencies 包含应用的所有依赖
type AppDependencies struct {
	Router         *router.Dependencies
	CatalogService *service.CatalogService
	CartService    *service.CartService
}

// messaging 订单事件投递及其资源释放
type messaging struct {
	publisher service.OrderPublisher
	close     func()
}

// initConfigAndLogger 初始化配置和日志器
func initConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, cfg.App.Name, cfg.App.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, lg, nil
}

// initDatabase 初始化本地商品库连接并执行迁移
func initDatabase(cfg *config.Config, lg *zap.Logger) (*database.DB, error) {
	db, err := database.New(cfg, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 在 HTTP 服务器启动前执行迁移，保证处理请求时表结构已就绪
	lg.Sugar().Infow("using migrations directory", "path", cfg.Migrations.Dir)
	if err := db.RunMigrations(cfg.Migrations.Dir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	return db, nil
}

// initCache 初始化缓存实例：购物车快照、远程响应缓存与幂等键共用
func initCache(cfg *config.Config, lg *zap.Logger) cache.Cache {
	if !cfg.Cache.Enabled {
		lg.Sugar().Infow("cache disabled")
		return cache.NewNullCache()
	}

	switch cfg.Cache.Type {
	case "redis":
		redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		redisCache, err := cache.NewRedisCache(redisAddr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			lg.Sugar().Warnw("failed to connect to Redis, falling back to memory cache", "error", err)
			lg.Sugar().Infow("cache enabled", "type", "memory (fallback)", "ttl", cfg.Cache.TTL)
			return cache.NewMemoryCache()
		}
		lg.Sugar().Infow("cache enabled", "type", "redis", "addr", redisAddr, "ttl", cfg.Cache.TTL)
		return redisCache
	case "memory":
		lg.Sugar().Infow("cache enabled", "type", "memory", "ttl", cfg.Cache.TTL)
		return cache.NewMemoryCache()
	default:
		lg.Sugar().Warnw("unknown cache type, using memory cache", "type", cfg.Cache.Type)
		return cache.NewMemoryCache()
	}
}

// initMessaging 初始化订单事件投递。未启用或连接失败时退化为日志投递。
func initMessaging(ctx context.Context, cfg *config.Config, lg *zap.Logger) *messaging {
	fallback := &messaging{publisher: mq.NewLogPublisher(lg), close: func() {}}
	if !cfg.MQ.Enabled {
		lg.Sugar().Infow("mq disabled, order events are logged only")
		return fallback
	}

	mqCfg := mq.FromAppConfig(cfg.MQ)
	if err := mqCfg.Validate(); err != nil {
		lg.Sugar().Warnw("invalid mq configuration, order events are logged only", "error", err)
		return fallback
	}

	cm := mq.NewConnectionManager(mqCfg, lg)
	cm.OnConnected(mq.DeclareExchange(mqCfg.Exchange))

	connectCtx, cancel := context.WithTimeout(ctx, mqCfg.ConnectionTimeout)
	defer cancel()
	if err := cm.Connect(connectCtx); err != nil {
		lg.Sugar().Warnw("failed to connect to rabbitmq, order events are logged only", "error", err)
		return fallback
	}

	producer := mq.NewProducer(cm, mqCfg.Producer, lg)
	return &messaging{
		publisher: mq.NewOrderPublisher(producer, mqCfg.Exchange, cfg.App.Name, lg),
		close: func() {
			if err := producer.Close(); err != nil {
				lg.Sugar().Errorw("failed to close mq producer", "error", err)
			}
			if err := cm.Close(); err != nil {
				lg.Sugar().Errorw("failed to close mq connection", "error", err)
			}
		},
	}
}

// initLimiter 写接口限流依赖 Redis，缓存不是 Redis 时不限流
func initLimiter(cfg *config.Config, cacheInstance cache.Cache, lg *zap.Logger) limiter.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	redisCache, ok := cacheInstance.(*cache.RedisCache)
	if !ok {
		lg.Sugar().Infow("rate limiting requires redis cache, disabled")
		return nil
	}

	l, err := limiter.NewTokenBucketLimiter(redisCache.Client(), limiter.FromAppConfig(cfg.RateLimit))
	if err != nil {
		lg.Sugar().Warnw("failed to create rate limiter, disabled", "error", err)
		return nil
	}
	lg.Sugar().Infow("rate limiting enabled", "rate", cfg.RateLimit.Rate, "burst", cfg.RateLimit.Burst, "window", cfg.RateLimit.Window)
	return l
}

// initDependencies 初始化应用依赖（仓储、服务、处理器）
func initDependencies(cfg *config.Config, db *database.DB, cacheInstance cache.Cache, publisher service.OrderPublisher, lg *zap.Logger) *AppDependencies {
	// 初始化依赖注入链：仓储 -> 服务 -> API处理器
	localRepo := repo.NewLocalProductRepository(db.DB)
	if cfg.Cache.Enabled {
		localRepo = repo.NewCachedLocalProductRepository(localRepo, cacheInstance, cfg.Cache.TTL)
	}

	var source remote.Source = remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout, lg)
	if cfg.Cache.Enabled && cfg.Remote.CacheTTL > 0 {
		source = remote.NewCachedSource(source, cacheInstance, cfg.Remote.CacheTTL)
	}

	catalogService := service.NewCatalogService(localRepo, source, lg)
	sessionService := service.NewSessionService(cfg, lg)
	cartService := service.NewCartService(catalogService, cacheInstance, publisher, cfg.Cart.SnapshotTTL, lg)

	checks := map[string]api.HealthCheck{
		"database": db.PingContext,
		"cache":    cacheInstance.Ping,
	}

	return &AppDependencies{
		Router: &router.Dependencies{
			CatalogHandler:   api.NewCatalogHandler(catalogService, lg),
			CartHandler:      api.NewCartHandler(cartService, lg),
			SessionHandler:   api.NewSessionHandler(sessionService, lg),
			HealthHandler:    api.NewHealthHandler(cfg.App.Version, checks, lg),
			SessionService:   sessionService,
			IdempotencyStore: cacheInstance,
			WriteLimiter:     initLimiter(cfg, cacheInstance, lg),
		},
		CatalogService: catalogService,
		CartService:    cartService,
	}
}

// warmCatalog 预加载商品目录；失败时首个请求会重试
func warmCatalog(ctx context.Context, catalog *service.CatalogService, timeout time.Duration, lg *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	products, err := catalog.LoadCatalog(ctx)
	if err != nil {
		lg.Sugar().Warnw("catalog warmup failed", "error", err)
		return
	}
	lg.Sugar().Infow("catalog loaded", "products", len(products))
}

// startServer 启动服务器，收到退出信号后优雅关闭并落盘所有购物车
func startServer(cfg *config.Config, handler http.Handler, deps *AppDependencies, lg *zap.Logger) {
	addr := fmt.Sprintf(":%d", cfg.App.Port)
	lg.Sugar().Infow("server starting", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Sugar().Errorw("server error", "err", err)
		}
	case <-quit:
		lg.Sugar().Infow("shutdown signal received")
	}

	shutdown(srv, deps.CartService, cfg.App.ShutdownTimeout, lg)
	lg.Sugar().Infow("server exited")
}

// shutdown 先停止接收请求，再落盘购物车，保证最后的修改也被持久化。
// 两步各自使用 timeout，关闭耗尽时间也不影响落盘。
func shutdown(srv interface{ Shutdown(context.Context) error }, carts interface{ Teardown(context.Context) error }, timeout time.Duration, lg *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Sugar().Errorw("server shutdown error", "err", err)
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), timeout)
	defer flushCancel()
	if err := carts.Teardown(flushCtx); err != nil {
		lg.Sugar().Errorw("cart teardown error", "err", err)
	}
}

// main 为应用入口，协调各个组件的初始化和启动
func main() {
	// 1) 加载配置和初始化日志
	cfg, lg, err := initConfigAndLogger()
	if err != nil {
		log.Fatalf("failed to initialize config and logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	// 2) 初始化本地商品库并执行迁移
	db, err := initDatabase(cfg, lg)
	if err != nil {
		lg.Sugar().Fatalw("failed to initialize database", "err", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			lg.Sugar().Errorw("failed to close database connection", "err", err)
		}
	}()

	// 3) 初始化缓存
	cacheInstance := initCache(cfg, lg)
	defer func() {
		if err := cacheInstance.Close(); err != nil {
			lg.Sugar().Errorw("failed to close cache", "err", err)
		}
	}()

	// 4) 初始化订单事件投递
	msg := initMessaging(context.Background(), cfg, lg)
	defer msg.close()

	// 5) 初始化应用依赖（仓储、服务、处理器）
	deps := initDependencies(cfg, db, cacheInstance, msg.publisher, lg)
	warmCatalog(context.Background(), deps.CatalogService, cfg.Remote.Timeout, lg)

	// 6) 设置路由和中间件
	handler := router.New().Setup(cfg, deps.Router, lg)

	// 7) 启动 HTTP 服务器
	startServer(cfg, handler, deps, lg)
}
