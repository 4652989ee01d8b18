package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MorseWayne/shopfront/internal/resp"
)

// Timeout 为请求上下文设置截止时间。
// 下游的远程调用与数据库访问都接收该上下文；处理器超时后未写出响应时，由这里写出统一的 504 响应。
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			tw := &timeoutWriter{ResponseWriter: w}
			r = r.WithContext(ctx)
			next.ServeHTTP(tw, r)
			if !tw.wroteHeader {
				writeTimeout(w, r)
			}
		})
	}
}

// writeTimeout 请求上下文已超时时写出统一响应，返回是否已写出
func writeTimeout(w http.ResponseWriter, r *http.Request) bool {
	if !errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		return false
	}
	resp.Error(w, resp.HTTPStatusFromCode(resp.CodeTimeout), resp.CodeTimeout, "request timeout",
		RequestIDFromContext(r.Context()), "")
	return true
}

// timeoutWriter 记录处理器是否已写出响应
type timeoutWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *timeoutWriter) WriteHeader(code int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *timeoutWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *timeoutWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
