package domain

// LineItem 购物车行项目，Product 为加入时的商品快照
type LineItem struct {
	Product  *Product `json:"product"`
	Quantity int      `json:"quantity"`
}

// Subtotal 行小计
func (li LineItem) Subtotal() float64 {
	if li.Product == nil {
		return 0
	}
	return li.Product.Price * float64(li.Quantity)
}

// CartSnapshot 购物车的可持久化形式
type CartSnapshot struct {
	Items      []LineItem `json:"items"`
	TotalItems int        `json:"total_items"`
	TotalPrice float64    `json:"total_price"`
}
