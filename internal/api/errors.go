// Package api 提供商品目录、购物车、结算与会话的 HTTP 处理器。
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/domain"
	"github.com/MorseWayne/shopfront/internal/middleware"
	"github.com/MorseWayne/shopfront/internal/resp"
)

// requestID 获取请求ID
func requestID(c *gin.Context) string {
	return middleware.RequestIDFromContext(c.Request.Context())
}

// sessionID 获取会话ID，由会话中间件写入
func sessionID(c *gin.Context) string {
	return c.GetString(middleware.GinKeySessionID)
}

// errorStatus 将领域错误映射为 HTTP 状态码与业务错误码
func errorStatus(err error) (int, int) {
	var (
		validationErr *domain.ValidationError
		notFoundErr   *domain.NotFoundError
		readOnlyErr   *domain.ReadOnlyError
		loadErr       *domain.CatalogLoadError
		persistErr    *domain.PersistenceError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, resp.CodeInvalidParam
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, resp.CodeNotFound
	case errors.As(err, &readOnlyErr):
		return http.StatusForbidden, resp.CodeForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, resp.CodeTimeout
	case errors.As(err, &loadErr):
		return http.StatusBadGateway, resp.CodeUpstream
	case errors.As(err, &persistErr):
		return http.StatusInternalServerError, resp.CodeInternalError
	default:
		return http.StatusInternalServerError, resp.CodeInternalError
	}
}

// writeError 写出领域错误。4xx 返回错误原文，5xx 只返回通用描述并记录日志。
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed",
			zap.String("request_id", requestID(c)),
			zap.String("session_id", sessionID(c)),
			zap.Error(err),
		)
		switch code {
		case resp.CodeUpstream:
			msg = "product catalog is temporarily unavailable"
		case resp.CodeTimeout:
			msg = "request timeout"
		default:
			msg = op + " failed"
		}
	}
	resp.Error(c.Writer, status, code, msg, requestID(c), "")
}

// badRequest 写出参数错误
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := domain.RegisterRules(v); err != nil {
			panic(err)
		}
	}
}

// bindJSON 解析请求体并执行 binding 标签校验，失败时写 400 并返回 false
func bindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}
	var verr *domain.ValidationError
	if errors.As(domain.AsValidationError(err), &verr) {
		badRequest(c, verr.Error())
	} else {
		badRequest(c, "invalid request body")
	}
	return false
}

func badRequest(c *gin.Context, msg string) {
	resp.Error(c.Writer, http.StatusBadRequest, resp.CodeInvalidParam, msg, requestID(c), "")
}
