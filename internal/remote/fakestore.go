// Package remote 访问远程商品 API（fakestoreapi 兼容接口）。
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/domain"
)

// Source 远程商品数据源
type Source interface {
	Products(ctx context.Context) ([]*domain.Product, error)
	// Product 商品不存在时返回 nil, nil
	Product(ctx context.Context, id string) (*domain.Product, error)
	Categories(ctx context.Context) ([]string, error)
}

// StatusError 远程接口返回非 2xx
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote %s returned status %d", e.URL, e.StatusCode)
}

// Client 远程商品 API 客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient 创建客户端
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// product 远程接口的商品结构，ID 为数字
type product struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Price       float64        `json:"price"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Image       string         `json:"image"`
	Rating      *domain.Rating `json:"rating"`
}

func (p *product) toDomain() *domain.Product {
	return &domain.Product{
		ID:          strconv.FormatInt(p.ID, 10),
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		Image:       p.Image,
		Rating:      p.Rating,
	}
}

// Products 获取全部商品
func (c *Client) Products(ctx context.Context) ([]*domain.Product, error) {
	return c.listProducts(ctx, "/products")
}

// Product 获取单个商品
func (c *Client) Product(ctx context.Context, id string) (*domain.Product, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return nil, nil
	}

	body, status, err := c.get(ctx, "/products/"+id)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	// 远程接口对不存在的商品返回空响应体
	if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, nil
	}

	var p product
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode remote product %s: %w", id, err)
	}
	return p.toDomain(), nil
}

// Categories 获取分类列表
func (c *Client) Categories(ctx context.Context) ([]string, error) {
	body, _, err := c.get(ctx, "/products/categories")
	if err != nil {
		return nil, err
	}

	var categories []string
	if err := json.Unmarshal(body, &categories); err != nil {
		return nil, fmt.Errorf("decode remote categories: %w", err)
	}
	return categories, nil
}

func (c *Client) listProducts(ctx context.Context, path string) ([]*domain.Product, error) {
	body, _, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var items []product
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode remote products: %w", err)
	}

	products := make([]*domain.Product, 0, len(items))
	for i := range items {
		products = append(products, items[i].toDomain())
	}
	return products, nil
}

// get 发起 GET 请求，非 2xx 返回 StatusError 及状态码
func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer res.Body.Close()

	c.logger.Debug("remote request",
		zap.String("url", endpoint),
		zap.Int("status", res.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, res.StatusCode, &StatusError{URL: endpoint, StatusCode: res.StatusCode}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, fmt.Errorf("read %s: %w", endpoint, err)
	}
	return body, res.StatusCode, nil
}
