package domain

import "time"

// CheckoutRequest 结算时的收货信息
type CheckoutRequest struct {
	Name    string `json:"name" validate:"required,notblank,max=255"`
	Address string `json:"address" validate:"required,notblank"`
	Email   string `json:"email" validate:"required,email"`
}

// Validate 姓名、地址、邮箱均为必填，邮箱需是纯地址形式
func (r *CheckoutRequest) Validate() error {
	return validateStruct(r)
}

// Order 已下单的订单
type Order struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	Customer   CheckoutRequest `json:"customer"`
	Items      []LineItem      `json:"items"`
	TotalItems int             `json:"total_items"`
	TotalPrice float64         `json:"total_price"`
	PlacedAt   time.Time       `json:"placed_at"`
}
