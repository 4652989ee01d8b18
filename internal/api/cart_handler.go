package api

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/domain"
	"github.com/MorseWayne/shopfront/internal/resp"
)

// CartServiceInterface 定义购物车服务接口
type CartServiceInterface interface {
	Get(ctx context.Context, sessionID string) (domain.CartSnapshot, error)
	AddProduct(ctx context.Context, sessionID, productID string) (domain.CartSnapshot, error)
	Remove(ctx context.Context, sessionID, productID string) (domain.CartSnapshot, error)
	Decrease(ctx context.Context, sessionID, productID string) (domain.CartSnapshot, error)
	UpdateQuantity(ctx context.Context, sessionID, productID string, quantity int) (domain.CartSnapshot, error)
	Clear(ctx context.Context, sessionID string) (domain.CartSnapshot, error)
	Checkout(ctx context.Context, sessionID string, req *domain.CheckoutRequest) (*domain.Order, error)
}

// AddItemRequest 加入购物车请求
type AddItemRequest struct {
	ProductID string `json:"product_id" binding:"required,notblank,max=64"`
}

// UpdateItemRequest 修改数量请求，Quantity 缺省视为无效请求
type UpdateItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// CartHandler 购物车与结算处理器，所有操作作用于当前会话的购物车
type CartHandler struct {
	cart   CartServiceInterface
	logger *zap.Logger
}

// NewCartHandler 创建购物车处理器
func NewCartHandler(cart CartServiceInterface, logger *zap.Logger) *CartHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartHandler{cart: cart, logger: logger}
}

// GetCart 当前购物车
// GET /api/v1/cart
func (h *CartHandler) GetCart(c *gin.Context) {
	snap, err := h.cart.Get(c.Request.Context(), sessionID(c))
	if err != nil {
		writeError(c, h.logger, "get cart", err)
		return
	}
	resp.OK(c.Writer, &snap, requestID(c), "")
}

// AddItem 加入商品，已存在时数量加一
// POST /api/v1/cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if !bindJSON(c, &req) {
		return
	}

	snap, err := h.cart.AddProduct(c.Request.Context(), sessionID(c), strings.TrimSpace(req.ProductID))
	if err != nil {
		writeError(c, h.logger, "add to cart", err)
		return
	}
	resp.OK(c.Writer, &snap, requestID(c), "")
}

// UpdateItem 设置数量，数量 <= 0 时删除该行
// PUT /api/v1/cart/items/:id
func (h *CartHandler) UpdateItem(c *gin.Context) {
	var req UpdateItemRequest
	if !bindJSON(c, &req) {
		return
	}

	snap, err := h.cart.UpdateQuantity(c.Request.Context(), sessionID(c), c.Param("id"), *req.Quantity)
	if err != nil {
		writeError(c, h.logger, "update cart item", err)
		return
	}
	resp.OK(c.Writer, &snap, requestID(c), "")
}

// DecreaseItem 数量减一，减到 0 时删除该行
// POST /api/v1/cart/items/:id/decrease
func (h *CartHandler) DecreaseItem(c *gin.Context) {
	snap, err := h.cart.Decrease(c.Request.Context(), sessionID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "decrease cart item", err)
		return
	}
	resp.OK(c.Writer, &snap, requestID(c), "")
}

// RemoveItem 删除行项目
// DELETE /api/v1/cart/items/:id
func (h *CartHandler) RemoveItem(c *gin.Context) {
	snap, err := h.cart.Remove(c.Request.Context(), sessionID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "remove cart item", err)
		return
	}
	resp.OK(c.Writer, &snap, requestID(c), "")
}

// ClearCart 清空购物车
// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	snap, err := h.cart.Clear(c.Request.Context(), sessionID(c))
	if err != nil {
		writeError(c, h.logger, "clear cart", err)
		return
	}
	resp.OK(c.Writer, &snap, requestID(c), "")
}

// Checkout 提交订单，成功后购物车被清空
// POST /api/v1/checkout
func (h *CartHandler) Checkout(c *gin.Context) {
	var req domain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	order, err := h.cart.Checkout(c.Request.Context(), sessionID(c), &req)
	if err != nil {
		writeError(c, h.logger, "checkout", err)
		return
	}

	h.logger.Info("checkout completed",
		zap.String("request_id", requestID(c)),
		zap.String("session_id", sessionID(c)),
		zap.String("order_id", order.ID),
	)
	resp.Created(c.Writer, order, requestID(c), "")
}
