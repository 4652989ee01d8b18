package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyCart 购物车为空时结算
var ErrEmptyCart = errors.New("cart is empty")

// CatalogLoadError 加载商品目录失败，Source 为 local 或 remote
type CatalogLoadError struct {
	Source string
	Err    error
}

func (e *CatalogLoadError) Error() string {
	return fmt.Sprintf("load %s catalog: %v", e.Source, e.Err)
}

func (e *CatalogLoadError) Unwrap() error { return e.Err }

// ValidationError 输入校验失败
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// NotFoundError 资源不存在
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// PersistenceError 存储或消息投递失败
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ReadOnlyError 远程商品不允许修改或删除
type ReadOnlyError struct {
	ID string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("product %q is read-only", e.ID)
}
