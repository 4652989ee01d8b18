// Package middleware 提供 HTTP 中间件：请求 ID、恢复、超时、CORS、访问日志、会话与幂等等。
package middleware

import (
	"context"
)

// contextKey 用于在上下文中存取特定键，避免与外部键冲突。
type contextKey string

// 约定的上下文键集合。
const (
	contextKeyRequestID contextKey = "request_id"
	contextKeySessionID contextKey = "session_id"
)

// GinKeySessionID gin 上下文中的会话 ID 键
const GinKeySessionID = "session_id"

// withRequestID 将请求 ID 写入上下文。
func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

// RequestIDFromContext 从上下文中读取请求 ID（可能为空）。
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(contextKeyRequestID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithSessionID 将会话 ID 写入上下文，测试与会话中间件共用。
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeySessionID, id)
}

// SessionIDFromContext 从上下文中读取会话 ID（可能为空）。
func SessionIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(contextKeySessionID).(string); ok {
		return s
	}
	return ""
}
