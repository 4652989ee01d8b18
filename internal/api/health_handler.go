package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/resp"
)

// HealthCheck 单项依赖检查
type HealthCheck func(ctx context.Context) error

// HealthStatus 健康检查结果
type HealthStatus struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version string
	checks  map[string]HealthCheck
	timeout time.Duration
	logger  *zap.Logger
}

// NewHealthHandler 创建健康检查处理器，checks 的键为依赖名称
func NewHealthHandler(version string, checks map[string]HealthCheck, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{version: version, checks: checks, timeout: 2 * time.Second, logger: logger}
}

// Healthz 依次检查各依赖，任一失败返回 503
// GET /healthz
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := &HealthStatus{Status: "ok", Version: h.version, Checks: make(map[string]string, len(h.checks))}
	httpStatus := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			status.Checks[name] = err.Error()
			status.Status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "ok"
	}

	code := resp.CodeOK
	if httpStatus != http.StatusOK {
		code = resp.CodeInternalError
	}
	resp.WriteJSON(c.Writer, httpStatus, code, status.Status, status, requestID(c), "")
}
