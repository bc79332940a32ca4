package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittoswap/internal/controlplane/api/auth"
	"github.com/marmos91/dittoswap/internal/logger"
)

const testSecret = "test-secret-key-that-is-at-least-32-characters-long"

func newJWTService(t *testing.T) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(auth.JWTConfig{Secret: testSecret, Issuer: "test"})
	if err != nil {
		t.Fatalf("failed to create JWT service: %v", err)
	}
	return svc
}

func mintToken(t *testing.T, svc *auth.JWTService, subject, role string) string {
	t.Helper()
	tok, err := svc.GenerateToken(subject, role, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return tok.AccessToken
}

// okHandler answers 204 and records the claims it saw.
func okHandler(seen **auth.Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = GetClaimsFromContext(r.Context())
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, method, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestGetClaimsFromContext(t *testing.T) {
	if claims := GetClaimsFromContext(context.Background()); claims != nil {
		t.Error("expected nil claims for an empty context")
	}

	ctx := context.WithValue(context.Background(), claimsContextKey, "not-claims")
	if claims := GetClaimsFromContext(ctx); claims != nil {
		t.Error("expected nil claims for a value of the wrong type")
	}

	ctx = context.WithValue(context.Background(), claimsContextKey, &auth.Claims{Role: auth.RoleReader})
	if claims := GetClaimsFromContext(ctx); claims == nil || claims.Role != auth.RoleReader {
		t.Errorf("expected reader claims, got %+v", claims)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"", "", false},
		{"Bearer abc123", "abc123", true},
		{"bearer abc123", "abc123", true},
		{"BEARER abc123", "abc123", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc123", "", false},
		{"Bearerabc123", "", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/grace", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, ok := extractBearerToken(req)
		if ok != tt.ok || got != tt.want {
			t.Errorf("header %q: got (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestJWTAuth(t *testing.T) {
	svc := newJWTService(t)
	other, err := auth.NewJWTService(auth.JWTConfig{Secret: strings.Repeat("x", 40), Issuer: "test"})
	if err != nil {
		t.Fatal(err)
	}

	var seen *auth.Claims
	h := JWTAuth(svc)(okHandler(&seen))

	tests := []struct {
		name  string
		authz string
		want  int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"garbage", "Bearer invalid-token", http.StatusUnauthorized},
		{"foreign secret", "Bearer " + mintToken(t, other, "ops", auth.RoleAdmin), http.StatusUnauthorized},
		{"reader", "Bearer " + mintToken(t, svc, "grafana", auth.RoleReader), http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			rr := serve(h, http.MethodGet, "/api/v1/promoted", tt.authz)
			if rr.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rr.Code)
			}
			if tt.want != http.StatusNoContent {
				if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
					t.Errorf("expected problem content type, got %q", ct)
				}
				if seen != nil {
					t.Error("handler must not run for a rejected token")
				}
				return
			}
			if seen == nil || seen.Subject != "grafana" || seen.Role != auth.RoleReader {
				t.Errorf("unexpected claims %+v", seen)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	svc := newJWTService(t)
	h := JWTAuth(svc)(RequireAdmin()(okHandler(nil)))

	if rr := serve(h, http.MethodPut, "/api/v1/grace", "Bearer "+mintToken(t, svc, "grafana", auth.RoleReader)); rr.Code != http.StatusForbidden {
		t.Errorf("reader: expected %d, got %d", http.StatusForbidden, rr.Code)
	}
	if rr := serve(h, http.MethodPut, "/api/v1/grace", "Bearer "+mintToken(t, svc, "ops", auth.RoleAdmin)); rr.Code != http.StatusNoContent {
		t.Errorf("admin: expected %d, got %d", http.StatusNoContent, rr.Code)
	}

	// Without JWTAuth in front there are no claims at all.
	if rr := serve(RequireAdmin()(okHandler(nil)), http.MethodPut, "/api/v1/grace", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("no claims: expected %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRequireRole_AnyOf(t *testing.T) {
	ctx := context.WithValue(context.Background(), claimsContextKey, &auth.Claims{Role: auth.RoleReader})
	h := RequireRole(auth.RoleAdmin, auth.RoleReader)(okHandler(nil))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/promoted", nil).WithContext(ctx))
	if rr.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
}

func TestAudit(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "INFO", "json", false)
	t.Cleanup(func() { logger.InitWithWriter(io.Discard, "INFO", "text", false) })

	svc := newJWTService(t)
	h := JWTAuth(svc)(Audit("set_grace")(okHandler(nil)))

	serve(h, http.MethodPut, "/api/v1/grace", "Bearer "+mintToken(t, svc, "ops", auth.RoleAdmin))
	out := buf.String()
	for _, want := range []string{`"msg":"Control action"`, `"operation":"set_grace"`, `"subject":"ops"`, `"role":"admin"`, `"status":204`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in audit log %q", want, out)
		}
	}

	buf.Reset()
	failing := Audit("init_region")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	serve(failing, http.MethodPost, "/api/v1/regions/0", "")
	out = buf.String()
	for _, want := range []string{`"msg":"Control action rejected"`, `"subject":"anonymous"`, `"status":409`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in audit log %q", want, out)
		}
	}
}
