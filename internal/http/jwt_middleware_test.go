package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"unkit-api/internal/domain"
	"unkit-api/internal/service"
)

func TestJWTAuthMiddleware(t *testing.T) {
	f := newAPIFixture(t)
	token := registerViaAPI(t, f, "alice@example.com", "alice", "s3cret-pass")

	w := f.do(t, http.MethodGet, "/users/me", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header should be 401, got %d", w.Code)
	}
	w = f.do(t, http.MethodGet, "/users/me", nil, map[string]string{"Authorization": "Basic abc"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("non-bearer header should be 401, got %d", w.Code)
	}
	w = f.do(t, http.MethodGet, "/users/me", nil, map[string]string{"Authorization": "Bearer not-a-jwt"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token should be 401, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/users/me", nil, map[string]string{"Authorization": "Bearer " + token})
	if w.Code != http.StatusOK {
		t.Fatalf("valid token should be 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestJWTAuthMiddleware_RejectsRefreshToken(t *testing.T) {
	f := newAPIFixture(t)
	registerViaAPI(t, f, "alice@example.com", "alice", "s3cret-pass")

	pair, err := f.tokenSvc.GeneratePair(domain.Account{Email: "alice@example.com", Username: "alice"})
	if err != nil {
		t.Fatalf("generate pair failed: %v", err)
	}
	w := f.do(t, http.MethodGet, "/users/me", nil, map[string]string{"Authorization": "Bearer " + pair.RefreshToken})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token on a protected route should be 401, got %d", w.Code)
	}
}

func TestJWTAuthMiddleware_ExpiredToken(t *testing.T) {
	f := newAPIFixture(t)
	registerViaAPI(t, f, "alice@example.com", "alice", "s3cret-pass")

	now := time.Now().UTC()
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, service.Claims{
		Username:  "alice",
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "unkit-api",
			Subject:   "alice@example.com",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("access-secret"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	w := f.do(t, http.MethodGet, "/users/me", nil, map[string]string{"Authorization": "Bearer " + signed})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expired token should be 401, got %d", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	f := newAPIFixture(t)
	token := registerViaAPI(t, f, "alice@example.com", "alice", "s3cret-pass")

	w := f.do(t, http.MethodGet, "/admin/overview", nil, map[string]string{"Authorization": "Bearer " + token})
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin should be 403, got %d", w.Code)
	}

	account := f.accounts.byEmail["alice@example.com"]
	account.IsAdmin = true
	f.accounts.put(account)

	w = f.do(t, http.MethodGet, "/admin/overview", nil, map[string]string{"Authorization": "Bearer " + token})
	if w.Code != http.StatusOK {
		t.Fatalf("admin should be 200, got %d: %s", w.Code, w.Body.String())
	}
	if msg := decodeJSON(t, w)["msg"]; msg != "Hello admin alice@example.com" {
		t.Fatalf("unexpected msg %v", msg)
	}
}
