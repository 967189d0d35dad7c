package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func generateTestToken(t *testing.T, userID, accountID string, expired bool) string {
	t.Helper()
	claims := &Claims{
		UserID:    userID,
		Email:     "admin@example.com",
		AccountID: accountID,
		Role:      "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	if expired {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-1 * time.Hour))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tokenString
}

func newAuthedHandler(t *testing.T) (http.Handler, map[string]string) {
	t.Helper()
	seen := map[string]string{}
	m := NewAuthMiddleware(testSecret, nil, []string{"/healthz"})
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen["user_id"] = GetUserID(r.Context())
		seen["account_id"] = GetAccountID(r.Context())
		seen["role"] = GetUserRole(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return h, seen
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	h, seen := newAuthedHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, "user-1", "acct-1", false))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen["user_id"] != "user-1" || seen["account_id"] != "acct-1" || seen["role"] != "admin" {
		t.Fatalf("claims not propagated: %#v", seen)
	}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	h, _ := newAuthedHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	h, _ := newAuthedHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, "user-1", "", true))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}
}

func TestAuthMiddleware_SkipPaths(t *testing.T) {
	h, _ := newAuthedHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected skip path to bypass auth, got %d", rec.Code)
	}
}

func TestAuthMiddleware_RejectsWrongAlgorithm(t *testing.T) {
	h, _ := newAuthedHandler(t)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for none-alg token, got %d", rec.Code)
	}
}
