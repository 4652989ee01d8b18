package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/resp"
	"github.com/MorseWayne/shopfront/internal/service"
)

const (
	// HeaderSessionToken 携带会话令牌的请求/响应头
	HeaderSessionToken = "X-Session-Token"
	// HeaderSessionID 响应头，回显当前会话 ID
	HeaderSessionID = "X-Session-ID"

	bearerPrefix = "Bearer "
)

// Session 购物会话中间件。
// 从 Authorization: Bearer 或 X-Session-Token 读取令牌；缺失、过期或无效时签发新会话，
// 新令牌通过 X-Session-Token 响应头返回。会话 ID 同时写入 gin 上下文与请求上下文。
func Session(sessions service.SessionService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := RequestIDFromContext(c.Request.Context())

		sessionID := ""
		if token := sessionToken(c.Request); token != "" {
			claims, err := sessions.Validate(token)
			if err == nil {
				sessionID = claims.SessionID
			} else {
				logger.Debug("session token rejected, issuing a new one",
					zap.String("request_id", reqID),
					zap.Error(err),
				)
			}
		}

		if sessionID == "" {
			sess, err := sessions.Issue()
			if err != nil {
				logger.Error("issue session failed", zap.String("request_id", reqID), zap.Error(err))
				resp.Error(c.Writer, http.StatusInternalServerError, resp.CodeInternalError, "session unavailable", reqID, "")
				c.Abort()
				return
			}
			sessionID = sess.ID
			c.Header(HeaderSessionToken, sess.Token)
		}

		c.Header(HeaderSessionID, sessionID)
		c.Set(GinKeySessionID, sessionID)
		c.Request = c.Request.WithContext(WithSessionID(c.Request.Context(), sessionID))
		c.Next()
	}
}

// sessionToken 优先读取 Bearer 令牌，其次 X-Session-Token
func sessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, bearerPrefix) {
		if token := strings.TrimSpace(strings.TrimPrefix(auth, bearerPrefix)); token != "" {
			return token
		}
	}
	return strings.TrimSpace(r.Header.Get(HeaderSessionToken))
}
