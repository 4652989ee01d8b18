package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrNotConnected 连接不可用
var ErrNotConnected = errors.New("rabbitmq is not connected")

// ConnectionState 连接状态
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionManager RabbitMQ连接管理器，连接意外断开时自动重连
type ConnectionManager struct {
	config *Config
	logger *zap.Logger

	conn      *amqp.Connection
	connMutex sync.RWMutex
	state     atomic.Int32

	stopCh         chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup
	reconnectCount atomic.Int32

	// 连接建立（含重连成功）后执行，用于声明交换机等拓扑
	onConnected func(ch *amqp.Channel) error
}

// NewConnectionManager 创建连接管理器
func NewConnectionManager(config *Config, logger *zap.Logger) *ConnectionManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	cm := &ConnectionManager{
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	cm.state.Store(int32(StateDisconnected))
	return cm
}

// OnConnected 设置连接建立后的拓扑初始化回调，需在 Connect 之前调用
func (cm *ConnectionManager) OnConnected(fn func(ch *amqp.Channel) error) {
	cm.onConnected = fn
}

// Connect 建立连接
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	if !cm.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return fmt.Errorf("connection is already in progress or connected")
	}

	cm.logger.Info("connecting to rabbitmq", zap.String("url", cm.config.RedactedURL()))

	if err := cm.dial(ctx); err != nil {
		cm.state.Store(int32(StateDisconnected))
		return err
	}

	cm.state.Store(int32(StateConnected))
	cm.logger.Info("rabbitmq connected")

	cm.wg.Add(1)
	go cm.monitorConnection()
	return nil
}

// dial 建立连接并执行拓扑初始化
func (cm *ConnectionManager) dial(ctx context.Context) error {
	connConfig := amqp.Config{
		Heartbeat: cm.config.HeartbeatInterval,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(cm.config.ConnectionTimeout),
	}

	conn, err := amqp.DialConfig(cm.config.GetConnectionURL(), connConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	if cm.onConnected != nil {
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to open setup channel: %w", err)
		}
		err = cm.onConnected(ch)
		_ = ch.Close()
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to set up topology: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		_ = conn.Close()
		return err
	}

	cm.connMutex.Lock()
	defer cm.connMutex.Unlock()
	select {
	case <-cm.stopCh:
		_ = conn.Close()
		return ErrNotConnected
	default:
	}
	cm.conn = conn
	return nil
}

// Channel 打开新通道，调用方负责关闭
func (cm *ConnectionManager) Channel() (*amqp.Channel, error) {
	if !cm.IsConnected() {
		return nil, ErrNotConnected
	}

	cm.connMutex.RLock()
	conn := cm.conn
	cm.connMutex.RUnlock()
	if conn == nil || conn.IsClosed() {
		return nil, ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return ch, nil
}

// IsConnected 检查是否已连接
func (cm *ConnectionManager) IsConnected() bool {
	return cm.GetState() == StateConnected
}

// GetState 获取连接状态
func (cm *ConnectionManager) GetState() ConnectionState {
	return ConnectionState(cm.state.Load())
}

// ReconnectCount 累计重连次数
func (cm *ConnectionManager) ReconnectCount() int32 {
	return cm.reconnectCount.Load()
}

// Close 关闭连接并等待后台监控退出
func (cm *ConnectionManager) Close() error {
	var err error
	cm.stopOnce.Do(func() {
		cm.state.Store(int32(StateClosed))
		cm.logger.Info("closing rabbitmq connection")
		close(cm.stopCh)

		cm.connMutex.Lock()
		if cm.conn != nil {
			err = cm.conn.Close()
			cm.conn = nil
		}
		cm.connMutex.Unlock()
	})
	cm.wg.Wait()
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

// monitorConnection 监听连接关闭事件，意外断开时重连
func (cm *ConnectionManager) monitorConnection() {
	defer cm.wg.Done()

	for {
		cm.connMutex.RLock()
		conn := cm.conn
		cm.connMutex.RUnlock()
		if conn == nil {
			return
		}

		closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case amqpErr, ok := <-closeCh:
			if !ok || amqpErr == nil {
				// 主动关闭
				return
			}
			cm.logger.Error("rabbitmq connection closed unexpectedly", zap.Error(amqpErr))
			if !cm.config.EnableReconnect || !cm.reconnect() {
				return
			}
		case <-cm.stopCh:
			return
		}
	}
}

// reconnect 按间隔重试，成功返回 true
func (cm *ConnectionManager) reconnect() bool {
	if !cm.state.CompareAndSwap(int32(StateConnected), int32(StateReconnecting)) {
		return false
	}

	maxAttempts := cm.config.MaxReconnectAttempts
	for attempt := 1; ; attempt++ {
		select {
		case <-cm.stopCh:
			return false
		default:
		}

		cm.reconnectCount.Add(1)
		cm.logger.Info("reconnecting to rabbitmq",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts))

		ctx, cancel := context.WithTimeout(context.Background(), cm.config.ConnectionTimeout)
		err := cm.dial(ctx)
		cancel()

		if err == nil {
			if !cm.state.CompareAndSwap(int32(StateReconnecting), int32(StateConnected)) {
				return false
			}
			cm.logger.Info("rabbitmq reconnected", zap.Int("attempts", attempt))
			return true
		}

		cm.logger.Error("rabbitmq reconnect failed", zap.Error(err), zap.Int("attempt", attempt))

		if maxAttempts > 0 && attempt >= maxAttempts {
			cm.logger.Error("rabbitmq reconnect gave up", zap.Int("max_attempts", maxAttempts))
			cm.state.CompareAndSwap(int32(StateReconnecting), int32(StateDisconnected))
			return false
		}

		select {
		case <-time.After(cm.config.ReconnectInterval):
		case <-cm.stopCh:
			return false
		}
	}
}
