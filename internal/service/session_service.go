// Package service 实现业务逻辑层：购物会话、商品目录聚合与购物车。
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/config"
)

// 会话令牌相关错误定义
var (
	ErrInvalidToken  = errors.New("invalid session token")
	ErrTokenExpired  = errors.New("session token expired")
	ErrTokenNotReady = errors.New("session token used before valid")
)

// SessionClaims 会话令牌载荷，Subject 即购物会话 ID
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Session 新签发的会话
type Session struct {
	ID        string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionService 定义会话令牌服务接口。
// 购物车按会话隔离，会话 ID 只存在于签名令牌中。
type SessionService interface {
	Issue() (*Session, error)
	Validate(tokenString string) (*SessionClaims, error)
}

type sessionService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	logger *zap.Logger
}

// NewSessionService 创建会话服务实例
func NewSessionService(cfg *config.Config, logger *zap.Logger) SessionService {
	return &sessionService{
		secret: []byte(cfg.Session.Secret),
		issuer: cfg.App.Name,
		ttl:    cfg.Session.TTL,
		logger: logger,
	}
}

// Issue 签发新的会话令牌
func (s *sessionService) Issue() (*Session, error) {
	now := time.Now()
	sessionID := uuid.NewString()
	expiresAt := now.Add(s.ttl)

	claims := &SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		s.logger.Error("failed to sign session token", zap.Error(err))
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	s.logger.Debug("session issued", zap.String("session_id", sessionID), zap.Duration("ttl", s.ttl))

	return &Session{ID: sessionID, Token: token, ExpiresAt: expiresAt}, nil
}

// Validate 验证会话令牌并返回载荷
func (s *sessionService) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotReady
		}
		s.logger.Debug("session token validation failed", zap.Error(err))
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}

	if claims.Issuer != s.issuer {
		s.logger.Warn("session token issuer mismatch",
			zap.String("expected", s.issuer),
			zap.String("actual", claims.Issuer),
		)
		return nil, ErrInvalidToken
	}

	return claims, nil
}
