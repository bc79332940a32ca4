package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret-key-must-be-32-chars!"

func newTestService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(JWTConfig{Secret: testSecret, Issuer: "test-issuer", Instance: "inst-1"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	return svc
}

func TestNewJWTService_ShortSecret(t *testing.T) {
	for _, secret := range []string{"", "short"} {
		_, err := NewJWTService(JWTConfig{Secret: secret})
		if !errors.Is(err, ErrInvalidSecretLength) {
			t.Errorf("secret %q: expected ErrInvalidSecretLength, got %v", secret, err)
		}
	}
}

func TestNewJWTService_Defaults(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: testSecret})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if svc.TokenDuration() != 24*time.Hour {
		t.Errorf("Expected default duration 24h, got %v", svc.TokenDuration())
	}
	if svc.config.Issuer != "dittoswap" {
		t.Errorf("Expected default issuer dittoswap, got %q", svc.config.Issuer)
	}
}

func TestGenerateAndValidate(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.GenerateToken("ops", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if token.TokenType != "Bearer" {
		t.Errorf("Expected token type Bearer, got %q", token.TokenType)
	}
	if token.ExpiresIn != 3600 {
		t.Errorf("Expected expires_in 3600, got %d", token.ExpiresIn)
	}

	claims, err := svc.ValidateToken(token.AccessToken)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if claims.Subject != "ops" {
		t.Errorf("Expected subject ops, got %q", claims.Subject)
	}
	if !claims.IsAdmin() {
		t.Error("Expected admin claims")
	}
	if claims.Instance != "inst-1" {
		t.Errorf("Expected instance inst-1, got %q", claims.Instance)
	}
}

func TestGenerateToken_InvalidRole(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.GenerateToken("ops", "root", 0); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("Expected ErrInvalidRole, got %v", err)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	svc := newTestService(t)
	issued := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issued }

	token, err := svc.GenerateToken("ops", RoleReader, time.Hour)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	svc.now = time.Now
	if _, err := svc.ValidateToken(token.AccessToken); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	svc := newTestService(t)
	token, _ := svc.GenerateToken("ops", RoleAdmin, 0)

	other, _ := NewJWTService(JWTConfig{Secret: strings.Repeat("x", 40), Issuer: "test-issuer"})
	if _, err := other.ValidateToken(token.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	svc := newTestService(t)
	token, _ := svc.GenerateToken("ops", RoleAdmin, 0)

	other, _ := NewJWTService(JWTConfig{Secret: testSecret, Issuer: "someone-else"})
	if _, err := other.ValidateToken(token.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := newTestService(t)
	for _, s := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := svc.ValidateToken(s); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", s, err)
		}
	}
}
