// Package domain 定义商品目录与购物车的领域模型和核心业务规则。
package domain

import (
	"encoding/base64"
	"math"
	"math/rand/v2"
	"net/url"
	"strings"
)

// LocalIDPrefix 本地商品 ID 的命名空间前缀，远程商品 ID 永远是纯数字，二者不会冲突。
const LocalIDPrefix = "local-"

// MaxImageBytes 内嵌图片解码后的最大字节数
const MaxImageBytes = 2 * 1024 * 1024

// Rating 商品评分
type Rating struct {
	Rate  float64 `json:"rate" validate:"gte=0,lte=5"`
	Count int     `json:"count" validate:"gte=0"`
}

// Product 商品目录条目，来源可能是远程 API 或本地商品库
type Product struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Image       string  `json:"image"` // URL 或 data:image/...;base64 内嵌图片
	Rating      *Rating `json:"rating,omitempty"`
	IsLocal     bool    `json:"is_local"`
}

// Clone 返回商品的深拷贝
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Rating != nil {
		r := *p.Rating
		cp.Rating = &r
	}
	return &cp
}

// IsLocalID 判断 ID 是否属于本地商品命名空间
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix) && len(id) > len(LocalIDPrefix)
}

// ProductInput 创建/更新本地商品的请求
type ProductInput struct {
	Title       string   `json:"title" validate:"required,notblank,max=255"`
	Description string   `json:"description" validate:"required,notblank"`
	Category    string   `json:"category" validate:"required,notblank,max=255"`
	Price       *float64 `json:"price" validate:"required,finite,gte=0"`
	Image       string   `json:"image" validate:"required,notblank"`
	Rating      *Rating  `json:"rating,omitempty"`
}

// Validate 校验商品字段，在任何 I/O 之前调用。图片格式与大小由 validateImage 单独检查。
func (in *ProductInput) Validate() error {
	if err := validateStruct(in); err != nil {
		return err
	}
	return validateImage(in.Image)
}

// validateImage 图片必须是 http(s) URL，或不超过 2MB 的 base64 data URL
func validateImage(image string) error {
	if strings.HasPrefix(image, "data:") {
		meta, payload, ok := strings.Cut(strings.TrimPrefix(image, "data:"), ",")
		if !ok || !strings.HasPrefix(meta, "image/") || !strings.HasSuffix(meta, ";base64") {
			return &ValidationError{Field: "image", Reason: "must be a base64 encoded image"}
		}
		if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes+2 {
			return &ValidationError{Field: "image", Reason: "exceeds 2MB"}
		}
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return &ValidationError{Field: "image", Reason: "is not valid base64"}
		}
		if len(decoded) > MaxImageBytes {
			return &ValidationError{Field: "image", Reason: "exceeds 2MB"}
		}
		return nil
	}

	u, err := url.Parse(image)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "image", Reason: "must be an http(s) URL or a data URL"}
	}
	return nil
}

// ApplyTo 将输入合并到已有商品上，输入中缺省的字段保留原值
func (in *ProductInput) ApplyTo(p *Product) {
	if in.Title != "" {
		p.Title = in.Title
	}
	if in.Description != "" {
		p.Description = in.Description
	}
	if in.Category != "" {
		p.Category = in.Category
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Image != "" {
		p.Image = in.Image
	}
	if in.Rating != nil {
		r := *in.Rating
		p.Rating = &r
	}
}

// RandomRating 生成展示用评分：rate ∈ [1,5) 保留一位小数，count ∈ [50,550)
func RandomRating() *Rating {
	rate := math.Round((rand.Float64()*4+1)*10) / 10
	if rate >= 5 {
		rate = 4.9
	}
	return &Rating{
		Rate:  rate,
		Count: rand.IntN(500) + 50,
	}
}

// FilterByCategory 按分类过滤商品：分类为空时原样返回，否则大小写不敏感精确匹配。
func FilterByCategory(products []*Product, category string) []*Product {
	if category == "" {
		return products
	}
	result := make([]*Product, 0, len(products))
	for _, p := range products {
		if strings.EqualFold(p.Category, category) {
			result = append(result, p)
		}
	}
	return result
}
