// Package middleware provides HTTP middleware for the automation layer.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

// Claims represents the JWT claims this service understands.
type Claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	roleKey      contextKey = "role"
	accountIDKey contextKey = "account_id"
	requestIDKey contextKey = "request_id"
)

// AuthMiddleware provides HS256 JWT authentication.
type AuthMiddleware struct {
	secret    []byte
	logger    *logger.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates a new authentication middleware. Paths in
// skipPaths bypass authentication entirely.
func NewAuthMiddleware(secret []byte, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}

	return &AuthMiddleware{
		secret:    secret,
		logger:    log,
		skipPaths: skip,
	}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondError(w, r, http.StatusUnauthorized, "invalid Authorization header format")
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.logger.WithError(err).Warn("token validation failed")
			m.respondError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		if claims.Role != "" {
			ctx = context.WithValue(ctx, roleKey, claims.Role)
		}
		if claims.AccountID != "" {
			ctx = context.WithValue(ctx, accountIDKey, claims.AccountID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validateToken validates a JWT token and returns its claims.
func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("missing user_id claim")
	}

	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})

	m.logger.WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": status,
	}).Warn("authentication failed")
}

// GetUserID extracts the authenticated user ID from context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// GetUserRole extracts the authenticated role from context.
func GetUserRole(ctx context.Context) string {
	if v, ok := ctx.Value(roleKey).(string); ok {
		return v
	}
	return ""
}

// GetAccountID extracts the token-scoped account ID from context. Empty
// means the token is not restricted to a single account.
func GetAccountID(ctx context.Context) string {
	if v, ok := ctx.Value(accountIDKey).(string); ok {
		return v
	}
	return ""
}
