package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/config"
)

func createTestSessionService(secret, issuer string, ttl time.Duration) SessionService {
	cfg := &config.Config{}
	cfg.Session.Secret = secret
	cfg.Session.TTL = ttl
	cfg.App.Name = issuer

	return NewSessionService(cfg, zap.NewNop())
}

func TestSessionService_IssueAndValidate(t *testing.T) {
	svc := createTestSessionService("test-secret-key", "test-service", time.Hour)

	session, err := svc.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if session.ID == "" || session.Token == "" {
		t.Fatalf("Issue returned empty session: %+v", session)
	}
	if time.Until(session.ExpiresAt) <= 0 {
		t.Errorf("ExpiresAt should be in the future, got %v", session.ExpiresAt)
	}

	claims, err := svc.Validate(session.Token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.SessionID != session.ID {
		t.Errorf("Expected SessionID %s, got %s", session.ID, claims.SessionID)
	}
	if claims.Issuer != "test-service" {
		t.Errorf("Expected Issuer test-service, got %s", claims.Issuer)
	}

	// 每次签发都是新会话
	other, err := svc.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if other.ID == session.ID {
		t.Error("two issued sessions share an id")
	}
}

func TestSessionService_Validate_Errors(t *testing.T) {
	svc := createTestSessionService("test-secret-key", "test-service", time.Hour)

	expired, err := createTestSessionService("test-secret-key", "test-service", -time.Minute).Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	foreignSecret, err := createTestSessionService("other-secret", "test-service", time.Hour).Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	foreignIssuer, err := createTestSessionService("test-secret-key", "other-service", time.Hour).Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &SessionClaims{SessionID: "sess-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "expired", token: expired.Token, wantErr: ErrTokenExpired},
		{name: "wrong secret", token: foreignSecret.Token, wantErr: ErrInvalidToken},
		{name: "wrong issuer", token: foreignIssuer.Token, wantErr: ErrInvalidToken},
		{name: "alg none", token: unsigned, wantErr: ErrInvalidToken},
		{name: "garbage", token: "not-a-token", wantErr: ErrInvalidToken},
		{name: "empty", token: "", wantErr: ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := svc.Validate(tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if claims != nil {
				t.Errorf("Validate() returned claims for invalid token: %+v", claims)
			}
		})
	}
}
