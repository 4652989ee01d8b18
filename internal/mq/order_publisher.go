package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/domain"
)

// OrderPublisher 将已下单事件投递到 topic 交换机
type OrderPublisher struct {
	producer *Producer
	exchange string
	appID    string
	logger   *zap.Logger
}

// NewOrderPublisher 创建订单事件投递器
func NewOrderPublisher(producer *Producer, exchange, appID string, logger *zap.Logger) *OrderPublisher {
	return &OrderPublisher{
		producer: producer,
		exchange: exchange,
		appID:    appID,
		logger:   logger,
	}
}

// DeclareExchange 声明订单事件交换机，作为连接建立后的拓扑回调
func DeclareExchange(exchange string) func(ch *amqp.Channel) error {
	return func(ch *amqp.Channel) error {
		return ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil)
	}
}

// PublishOrder 投递已下单事件，MessageId 为订单 ID，便于下游去重
func (p *OrderPublisher) PublishOrder(ctx context.Context, order *domain.Order) error {
	msg := NewOrderPlacedMessage(order)
	err := p.producer.PublishJSON(ctx, p.exchange, RoutingKeyOrderPlaced, msg, &PublishOptions{
		MessageID: order.ID,
		Timestamp: order.PlacedAt,
		Type:      MessageTypeOrderPlaced,
		AppID:     p.appID,
	})
	if err != nil {
		return err
	}

	p.logger.Info("order event published",
		zap.String("order_id", order.ID),
		zap.String("exchange", p.exchange),
		zap.String("routing_key", RoutingKeyOrderPlaced),
	)
	return nil
}

// LogPublisher 消息队列未启用时使用，只记录日志
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher 创建日志投递器
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// PublishOrder 记录订单事件
func (p *LogPublisher) PublishOrder(ctx context.Context, order *domain.Order) error {
	msg := NewOrderPlacedMessage(order)
	p.logger.Info("order placed (mq disabled)",
		zap.String("order_id", msg.OrderID),
		zap.String("session_id", msg.SessionID),
		zap.Int("total_items", msg.TotalItems),
		zap.Float64("total_price", msg.TotalPrice),
	)
	return nil
}
