// Package mq 提供RabbitMQ连接管理与订单事件投递
package mq

import (
	"fmt"
	"net/url"
	"time"

	"github.com/MorseWayne/shopfront/internal/config"
)

// 订单事件路由
const (
	DefaultExchange       = "shop.orders"
	RoutingKeyOrderPlaced = "order.placed"
)

// Config RabbitMQ配置
type Config struct {
	// 连接配置
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	VHost    string `json:"vhost"`

	ConnectionTimeout time.Duration `json:"connection_timeout"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`

	// 重连配置
	EnableReconnect      bool          `json:"enable_reconnect"`
	ReconnectInterval    time.Duration `json:"reconnect_interval"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`

	// 订单事件交换机，topic 类型
	Exchange string `json:"exchange"`

	Producer *ProducerConfig `json:"producer"`
}

// ProducerConfig 生产者配置
type ProducerConfig struct {
	// 发布确认
	EnableConfirm  bool          `json:"enable_confirm"`
	ConfirmTimeout time.Duration `json:"confirm_timeout"`

	// 重试配置
	EnableRetry      bool          `json:"enable_retry"`
	MaxRetryAttempts int           `json:"max_retry_attempts"`
	RetryInterval    time.Duration `json:"retry_interval"`

	// 发送超时
	PublishTimeout time.Duration `json:"publish_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5672,
		Username: "guest",
		Password: "guest",
		VHost:    "/",

		ConnectionTimeout: 30 * time.Second,
		HeartbeatInterval: 10 * time.Second,

		EnableReconnect:      true,
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 10,

		Exchange: DefaultExchange,

		Producer: DefaultProducerConfig(),
	}
}

// DefaultProducerConfig 默认生产者配置
func DefaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		EnableConfirm:    true,
		ConfirmTimeout:   5 * time.Second,
		EnableRetry:      true,
		MaxRetryAttempts: 3,
		RetryInterval:    1 * time.Second,
		PublishTimeout:   10 * time.Second,
	}
}

// FromAppConfig 由应用配置生成 RabbitMQ 配置，未设置的字段取默认值
func FromAppConfig(cfg config.MQConfig) *Config {
	c := DefaultConfig()
	if cfg.Host != "" {
		c.Host = cfg.Host
	}
	if cfg.Port != 0 {
		c.Port = cfg.Port
	}
	if cfg.Username != "" {
		c.Username = cfg.Username
	}
	if cfg.Password != "" {
		c.Password = cfg.Password
	}
	if cfg.VHost != "" {
		c.VHost = cfg.VHost
	}
	if cfg.Exchange != "" {
		c.Exchange = cfg.Exchange
	}
	return c
}

// GetConnectionURL 获取连接URL
func (c *Config) GetConnectionURL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.VHost,
	}
	return u.String()
}

// RedactedURL 日志中使用的连接URL，不包含密码
func (c *Config) RedactedURL() string {
	return fmt.Sprintf("amqp://%s@%s:%d%s", c.Username, c.Host, c.Port, c.VHost)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if c.Username == "" {
		return fmt.Errorf("username is required")
	}

	if c.Exchange == "" {
		return fmt.Errorf("exchange is required")
	}

	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection_timeout must be greater than 0")
	}

	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be greater than 0")
	}

	if c.Producer != nil {
		if err := c.Producer.Validate(); err != nil {
			return fmt.Errorf("producer config validation failed: %w", err)
		}
	}

	return nil
}

// Validate 验证生产者配置
func (c *ProducerConfig) Validate() error {
	if c.ConfirmTimeout <= 0 {
		return fmt.Errorf("confirm_timeout must be greater than 0")
	}

	if c.MaxRetryAttempts < 0 {
		return fmt.Errorf("max_retry_attempts must be >= 0")
	}

	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry_interval must be greater than 0")
	}

	if c.PublishTimeout <= 0 {
		return fmt.Errorf("publish_timeout must be greater than 0")
	}

	return nil
}
