// Package resp 定义统一的 HTTP JSON 响应结构与错误码。
package resp

import (
	"encoding/json"
	"net/http"
)

// 业务错误码
const (
	CodeOK            = 0
	CodeInvalidParam  = 40000
	CodeUnauthorized  = 40100
	CodeForbidden     = 40300
	CodeNotFound      = 40400
	CodeConflict      = 40900
	CodeTooMany       = 42900
	CodeInternalError = 50000
	CodeUpstream      = 50200
	CodeTimeout       = 50400
)

// Response 统一响应体
type Response[T any] struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      *T     `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// WriteJSON 写入统一响应
func WriteJSON[T any](w http.ResponseWriter, status, code int, message string, data *T, requestID, traceID string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response[T]{
		Code:      code,
		Message:   message,
		Data:      data,
		RequestID: requestID,
		TraceID:   traceID,
	})
}

// OK 写入成功响应
func OK[T any](w http.ResponseWriter, data *T, requestID, traceID string) {
	WriteJSON(w, http.StatusOK, CodeOK, "success", data, requestID, traceID)
}

// Created 写入创建成功响应
func Created[T any](w http.ResponseWriter, data *T, requestID, traceID string) {
	WriteJSON(w, http.StatusCreated, CodeOK, "created", data, requestID, traceID)
}

// Error 写入错误响应
func Error(w http.ResponseWriter, status, code int, message, requestID, traceID string) {
	WriteJSON[any](w, status, code, message, nil, requestID, traceID)
}

// HTTPStatusFromCode 将业务错误码映射为 HTTP 状态码
func HTTPStatusFromCode(code int) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTooMany:
		return http.StatusTooManyRequests
	case CodeUpstream:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
