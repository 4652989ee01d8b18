package mq

import (
	"time"

	"github.com/MorseWayne/shopfront/internal/domain"
)

// MessageTypeOrderPlaced 已下单事件类型
const MessageTypeOrderPlaced = "order.placed"

// OrderPlacedMessage 已下单事件
type OrderPlacedMessage struct {
	Type       string             `json:"type"`
	OrderID    string             `json:"order_id"`
	SessionID  string             `json:"session_id"`
	Customer   OrderCustomer      `json:"customer"`
	Items      []OrderMessageItem `json:"items"`
	TotalItems int                `json:"total_items"`
	TotalPrice float64            `json:"total_price"`
	PlacedAt   time.Time          `json:"placed_at"`
}

// OrderCustomer 收货信息
type OrderCustomer struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
}

// OrderMessageItem 订单行，只携带下游需要的商品字段
type OrderMessageItem struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	IsLocal   bool    `json:"is_local"`
}

// NewOrderPlacedMessage 由订单构建事件消息
func NewOrderPlacedMessage(order *domain.Order) *OrderPlacedMessage {
	items := make([]OrderMessageItem, 0, len(order.Items))
	for _, it := range order.Items {
		if it.Product == nil {
			continue
		}
		items = append(items, OrderMessageItem{
			ProductID: it.Product.ID,
			Title:     it.Product.Title,
			Price:     it.Product.Price,
			Quantity:  it.Quantity,
			IsLocal:   it.Product.IsLocal,
		})
	}

	return &OrderPlacedMessage{
		Type:      MessageTypeOrderPlaced,
		OrderID:   order.ID,
		SessionID: order.SessionID,
		Customer: OrderCustomer{
			Name:    order.Customer.Name,
			Address: order.Customer.Address,
			Email:   order.Customer.Email,
		},
		Items:      items,
		TotalItems: order.TotalItems,
		TotalPrice: order.TotalPrice,
		PlacedAt:   order.PlacedAt,
	}
}
