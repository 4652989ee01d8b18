package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/MorseWayne/shopfront/internal/cache"
	"github.com/MorseWayne/shopfront/internal/cart"
	"github.com/MorseWayne/shopfront/internal/domain"
)

// OrderPublisher 投递已下单事件
type OrderPublisher interface {
	PublishOrder(ctx context.Context, order *domain.Order) error
}

// 空闲账本的回收参数
const (
	idleTimeout   = 30 * time.Minute
	sweepInterval = time.Minute
)

// CartService 管理每个购物会话的购物车账本。
// 变更先作用于内存账本，再标记会话待持久化，由后台写入器异步写入快照存储。
// 同一会话的多次变更在写入前合并，写入失败只记录日志。
// 账本为空或长时间未访问时，在快照写入成功后从内存中移除，下次访问再从存储恢复。
type CartService struct {
	catalog   ProductLookup
	store     cache.Cache
	publisher OrderPublisher
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time

	// mu 读锁覆盖一次完整的账本变更，写锁用于装载与回收
	mu      sync.RWMutex
	entries map[string]*cartEntry
	inits   singleflight.Group

	pendingMu sync.Mutex
	pending   map[string]struct{}
	signal    chan struct{}

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

type cartEntry struct {
	ledger   *cart.Ledger
	lastUsed atomic.Int64
}

// NewCartService 创建购物车服务并启动快照写入器，调用方需在退出前调用 Teardown
func NewCartService(catalog ProductLookup, store cache.Cache, publisher OrderPublisher, ttl time.Duration, logger *zap.Logger) *CartService {
	s := &CartService{
		catalog:   catalog,
		store:     store,
		publisher: publisher,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
		entries:   make(map[string]*cartEntry),
		pending:   make(map[string]struct{}),
		signal:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go s.runWriter()
	return s
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("cart:snapshot:%s", sessionID)
}

func emptySnapshot() domain.CartSnapshot {
	return domain.CartSnapshot{Items: []domain.LineItem{}}
}

// load 确保会话账本已在内存中。快照读取失败时不装载账本，避免之后的写入覆盖未读取的快照。
// create 为 false 且存储中没有非空快照时不装载，返回 false。
func (s *CartService) load(ctx context.Context, sessionID string, create bool) (bool, error) {
	s.mu.RLock()
	_, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if ok {
		return true, nil
	}

	v, err, _ := s.inits.Do(sessionID, func() (any, error) {
		// 合并后的读取不应随第一个调用方的取消而失败
		var snap domain.CartSnapshot
		err := s.store.Get(context.WithoutCancel(ctx), snapshotKey(sessionID), &snap)
		switch {
		case err == nil:
			return &snap, nil
		case cache.IsMiss(err):
			return (*domain.CartSnapshot)(nil), nil
		default:
			s.logger.Warn("failed to restore cart snapshot",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			return nil, &domain.PersistenceError{Op: "restore cart", Err: err}
		}
	})
	if err != nil {
		return false, err
	}

	snap := v.(*domain.CartSnapshot)
	if !create && (snap == nil || len(snap.Items) == 0) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[sessionID]; ok {
		return true, nil
	}
	e := &cartEntry{ledger: cart.New()}
	if snap != nil {
		e.ledger.Restore(*snap)
	}
	e.lastUsed.Store(s.now().UnixNano())
	s.entries[sessionID] = e
	return true, nil
}

// withLedger 在读锁内对会话账本执行 fn，fn 返回 true 表示账本被修改
func (s *CartService) withLedger(ctx context.Context, sessionID string, create bool, fn func(l *cart.Ledger) bool) (domain.CartSnapshot, error) {
	for {
		loaded, err := s.load(ctx, sessionID, create)
		if err != nil {
			return domain.CartSnapshot{}, err
		}
		if !loaded {
			return emptySnapshot(), nil
		}

		s.mu.RLock()
		e, ok := s.entries[sessionID]
		if !ok {
			// 装载后被回收，重新装载
			s.mu.RUnlock()
			continue
		}
		e.lastUsed.Store(s.now().UnixNano())
		if fn(e.ledger) {
			s.markDirty(sessionID)
		}
		snap := e.ledger.Snapshot()
		s.mu.RUnlock()
		return snap, nil
	}
}

// markDirty 标记会话待持久化，不阻塞调用方
func (s *CartService) markDirty(sessionID string) {
	s.pendingMu.Lock()
	s.pending[sessionID] = struct{}{}
	s.pendingMu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *CartService) isPending(sessionID string) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	_, ok := s.pending[sessionID]
	return ok
}

func (s *CartService) runWriter() {
	defer close(s.stopped)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.signal:
			_ = s.flushPending(context.Background())
		case <-ticker.C:
			s.evictIdle(context.Background(), s.now())
		case <-s.done:
			return
		}
	}
}

// flushPending 写入所有待持久化会话的最新快照，写入后为空的账本被回收
func (s *CartService) flushPending(ctx context.Context) error {
	s.pendingMu.Lock()
	sessions := s.pending
	s.pending = make(map[string]struct{})
	s.pendingMu.Unlock()

	var errs []error
	for sessionID := range sessions {
		e, err := s.persist(ctx, sessionID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if e != nil && e.ledger.Len() == 0 {
			s.evict(sessionID, e, 0)
		}
	}
	return errors.Join(errs...)
}

// evictIdle 写入并回收超过 idleTimeout 未访问的账本
func (s *CartService) evictIdle(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-idleTimeout).UnixNano()

	type candidate struct {
		id   string
		e    *cartEntry
		seen int64
	}
	var idle []candidate
	s.mu.RLock()
	for id, e := range s.entries {
		if seen := e.lastUsed.Load(); seen < cutoff {
			idle = append(idle, candidate{id: id, e: e, seen: seen})
		}
	}
	s.mu.RUnlock()

	evicted := 0
	for _, c := range idle {
		if err := s.write(ctx, c.id, c.e); err != nil {
			continue
		}
		if s.evict(c.id, c.e, c.seen) {
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug("idle carts evicted", zap.Int("sessions", evicted))
	}
	return evicted
}

// evict 在写锁内确认账本自快照写入后未被修改，再将其移出内存。
// seen 为 0 时要求账本为空，否则要求最后访问时间未变化。
func (s *CartService) evict(sessionID string, e *cartEntry, seen int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[sessionID] != e || s.isPending(sessionID) {
		return false
	}
	if seen == 0 && e.ledger.Len() != 0 {
		return false
	}
	if seen != 0 && e.lastUsed.Load() != seen {
		return false
	}
	delete(s.entries, sessionID)
	return true
}

func (s *CartService) persist(ctx context.Context, sessionID string) (*cartEntry, error) {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return e, s.write(ctx, sessionID, e)
}

func (s *CartService) write(ctx context.Context, sessionID string, e *cartEntry) error {
	if err := s.store.Set(ctx, snapshotKey(sessionID), e.ledger.Snapshot(), s.ttl); err != nil {
		s.logger.Warn("failed to persist cart snapshot",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return fmt.Errorf("persist cart %s: %w", sessionID, err)
	}
	return nil
}

// Get 返回会话购物车，没有购物车的会话返回空快照且不占用内存
func (s *CartService) Get(ctx context.Context, sessionID string) (domain.CartSnapshot, error) {
	return s.withLedger(ctx, sessionID, false, func(*cart.Ledger) bool { return false })
}

// AddProduct 通过目录解析商品后加入购物车
func (s *CartService) AddProduct(ctx context.Context, sessionID, productID string) (domain.CartSnapshot, error) {
	product, err := s.catalog.Product(ctx, productID)
	if err != nil {
		return domain.CartSnapshot{}, err
	}

	return s.withLedger(ctx, sessionID, true, func(l *cart.Ledger) bool {
		l.Add(product)
		return true
	})
}

// Remove 删除行项目
func (s *CartService) Remove(ctx context.Context, sessionID, productID string) (domain.CartSnapshot, error) {
	return s.withLedger(ctx, sessionID, false, func(l *cart.Ledger) bool {
		l.Remove(productID)
		return true
	})
}

// Decrease 数量减一
func (s *CartService) Decrease(ctx context.Context, sessionID, productID string) (domain.CartSnapshot, error) {
	return s.withLedger(ctx, sessionID, false, func(l *cart.Ledger) bool {
		l.Decrease(productID)
		return true
	})
}

// UpdateQuantity 设置数量，quantity <= 0 删除行项目
func (s *CartService) UpdateQuantity(ctx context.Context, sessionID, productID string, quantity int) (domain.CartSnapshot, error) {
	return s.withLedger(ctx, sessionID, false, func(l *cart.Ledger) bool {
		l.UpdateQuantity(productID, quantity)
		return true
	})
}

// Clear 清空购物车
func (s *CartService) Clear(ctx context.Context, sessionID string) (domain.CartSnapshot, error) {
	return s.withLedger(ctx, sessionID, false, func(l *cart.Ledger) bool {
		l.Clear()
		return true
	})
}

// Checkout 下单：校验收货信息，投递订单事件，成功后清空购物车。投递失败时保留购物车。
func (s *CartService) Checkout(ctx context.Context, sessionID string, req *domain.CheckoutRequest) (*domain.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	snap, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(snap.Items) == 0 {
		return nil, &domain.ValidationError{Field: "cart", Reason: domain.ErrEmptyCart.Error()}
	}

	order := &domain.Order{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Customer:   *req,
		Items:      snap.Items,
		TotalItems: snap.TotalItems,
		TotalPrice: snap.TotalPrice,
		PlacedAt:   s.now().UTC(),
	}

	if err := s.publisher.PublishOrder(ctx, order); err != nil {
		s.logger.Error("failed to publish order",
			zap.String("session_id", sessionID),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return nil, &domain.PersistenceError{Op: "publish order", Err: err}
	}

	if _, err := s.Clear(ctx, sessionID); err != nil {
		// 订单已投递，购物车留待下次清理
		s.logger.Warn("failed to clear cart after checkout",
			zap.String("session_id", sessionID),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("order placed",
		zap.String("session_id", sessionID),
		zap.String("order_id", order.ID),
		zap.Int("total_items", order.TotalItems),
		zap.Float64("total_price", order.TotalPrice),
	)
	return order, nil
}

// Teardown 停止后台写入器，并同步写入所有会话的快照
func (s *CartService) Teardown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })
	<-s.stopped

	s.pendingMu.Lock()
	s.pending = make(map[string]struct{})
	s.pendingMu.Unlock()

	s.mu.RLock()
	sessions := make([]string, 0, len(s.entries))
	for id := range s.entries {
		sessions = append(sessions, id)
	}
	s.mu.RUnlock()

	var errs []error
	for _, id := range sessions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.persist(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Info("cart snapshots flushed", zap.Int("sessions", len(sessions)))
	return errors.Join(errs...)
}
