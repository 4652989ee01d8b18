package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/middleware"
	"github.com/MorseWayne/shopfront/internal/resp"
	"github.com/MorseWayne/shopfront/internal/service"
)

// SessionHandler 会话处理器
type SessionHandler struct {
	sessions service.SessionService
	logger   *zap.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessions service.SessionService, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{sessions: sessions, logger: logger}
}

// IssueSession 签发新的购物会话，即开启一个空购物车
// POST /api/v1/session
func (h *SessionHandler) IssueSession(c *gin.Context) {
	sess, err := h.sessions.Issue()
	if err != nil {
		h.logger.Error("issue session failed", zap.String("request_id", requestID(c)), zap.Error(err))
		resp.Error(c.Writer, http.StatusInternalServerError, resp.CodeInternalError, "issue session failed", requestID(c), "")
		return
	}

	c.Header(middleware.HeaderSessionToken, sess.Token)
	c.Header(middleware.HeaderSessionID, sess.ID)
	resp.Created(c.Writer, sess, requestID(c), "")
}
