package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Channeler 提供 AMQP 通道
type Channeler interface {
	Channel() (*amqp.Channel, error)
}

// Producer RabbitMQ生产者，支持发布确认与失败重试
type Producer struct {
	cm     Channeler
	config *ProducerConfig
	logger *zap.Logger

	publishedCount atomic.Int64
	confirmedCount atomic.Int64
	failedCount    atomic.Int64

	closed bool
	mutex  sync.RWMutex
}

// PublishOptions 发布选项
type PublishOptions struct {
	Mandatory bool
	Headers   amqp.Table
	MessageID string
	Timestamp time.Time
	Type      string
	AppID     string
}

// NewProducer 创建生产者
func NewProducer(cm Channeler, config *ProducerConfig, logger *zap.Logger) *Producer {
	if config == nil {
		config = DefaultProducerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Producer{
		cm:     cm,
		config: config,
		logger: logger,
	}
}

// Publish 发布消息
func (p *Producer) Publish(ctx context.Context, exchange, routingKey string, publishing amqp.Publishing, options *PublishOptions) error {
	if p.isClosed() {
		return fmt.Errorf("producer is closed")
	}

	var lastErr error
	maxAttempts := 1
	if p.config.EnableRetry {
		maxAttempts = p.config.MaxRetryAttempts + 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := p.publishOnce(ctx, exchange, routingKey, publishing, options)
		if err == nil {
			return nil
		}

		lastErr = err
		p.logger.Warn("publish failed",
			zap.String("exchange", exchange),
			zap.String("routing_key", routingKey),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))

		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(p.config.RetryInterval):
		case <-ctx.Done():
			p.failedCount.Add(1)
			return ctx.Err()
		}
	}

	p.failedCount.Add(1)
	return fmt.Errorf("failed to publish message after %d attempts: %w", maxAttempts, lastErr)
}

// PublishJSON 发布JSON消息
func (p *Producer) PublishJSON(ctx context.Context, exchange, routingKey string, data any, options *PublishOptions) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return p.Publish(ctx, exchange, routingKey, buildPublishing(body, "application/json", options), options)
}

// publishOnce 单次发布消息
func (p *Producer) publishOnce(ctx context.Context, exchange, routingKey string, publishing amqp.Publishing, options *PublishOptions) error {
	ch, err := p.cm.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}
	defer ch.Close()

	var confirmCh chan amqp.Confirmation
	if p.config.EnableConfirm {
		if err := ch.Confirm(false); err != nil {
			return fmt.Errorf("failed to set confirm mode: %w", err)
		}
		confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	mandatory := options != nil && options.Mandatory
	if err := ch.PublishWithContext(publishCtx, exchange, routingKey, mandatory, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	p.publishedCount.Add(1)

	if !p.config.EnableConfirm {
		return nil
	}

	select {
	case confirmation := <-confirmCh:
		if confirmation.Ack {
			p.confirmedCount.Add(1)
			return nil
		}
		return fmt.Errorf("message was nacked by broker")
	case <-time.After(p.config.ConfirmTimeout):
		return fmt.Errorf("publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// buildPublishing 构建发布消息
func buildPublishing(body []byte, contentType string, options *PublishOptions) amqp.Publishing {
	publishing := amqp.Publishing{
		Body:         body,
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}

	if options != nil {
		publishing.Headers = options.Headers
		publishing.MessageId = options.MessageID
		publishing.Type = options.Type
		publishing.AppId = options.AppID
		if !options.Timestamp.IsZero() {
			publishing.Timestamp = options.Timestamp
		}
	}

	return publishing
}

// Close 关闭生产者
func (p *Producer) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.closed = true
	return nil
}

func (p *Producer) isClosed() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.closed
}

// GetStats 获取统计信息
func (p *Producer) GetStats() ProducerStats {
	return ProducerStats{
		PublishedCount: p.publishedCount.Load(),
		ConfirmedCount: p.confirmedCount.Load(),
		FailedCount:    p.failedCount.Load(),
		ConfirmMode:    p.config.EnableConfirm,
	}
}

// ProducerStats 生产者统计信息
type ProducerStats struct {
	PublishedCount int64 `json:"published_count"`
	ConfirmedCount int64 `json:"confirmed_count"`
	FailedCount    int64 `json:"failed_count"`
	ConfirmMode    bool  `json:"confirm_mode"`
}
