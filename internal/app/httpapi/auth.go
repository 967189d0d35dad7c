package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/LeadWire-CRM/automation_layer/internal/middleware"
)

// openPaths bypass authentication entirely.
var openPaths = map[string]bool{
	"/healthz": true,
}

// wrapWithAuth guards the API with static bearer tokens and, when configured,
// JWT verification. With neither configured the API runs open (dev mode).
func wrapWithAuth(next http.Handler, tokens []string, jwtAuth *middleware.AuthMiddleware) http.Handler {
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			tokenSet[t] = true
		}
	}
	var jwtNext http.Handler
	if jwtAuth != nil {
		jwtNext = jwtAuth.Handler(next)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if openPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if len(tokenSet) == 0 && jwtNext == nil {
			next.ServeHTTP(w, r)
			return
		}

		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, prefix) && tokenSet[strings.TrimSpace(strings.TrimPrefix(header, prefix))] {
			next.ServeHTTP(w, r)
			return
		}
		if jwtNext != nil {
			// Not a static token; the JWT middleware judges it.
			jwtNext.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid or missing bearer token"))
	})
}

// wrapWithAudit records mutating API calls in the audit trail.
func wrapWithAudit(next http.Handler, audit *auditLog) http.Handler {
	if audit == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}

		rec := &auditRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		audit.add(auditEntry{
			Time:       time.Now().UTC(),
			User:       middleware.GetUserID(r.Context()),
			Account:    pathAccount(r.URL.Path),
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
	})
}

type auditRecorder struct {
	http.ResponseWriter
	status int
}

func (r *auditRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// pathAccount extracts the tenant segment from /accounts/{id}/... paths.
func pathAccount(path string) string {
	if !strings.HasPrefix(path, "/accounts/") {
		return ""
	}
	rest := strings.TrimPrefix(path, "/accounts/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
