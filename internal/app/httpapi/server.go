package httpapi

import (
	"fmt"
	"net/http"

	app "github.com/LeadWire-CRM/automation_layer/internal/app"
	"github.com/LeadWire-CRM/automation_layer/internal/app/metrics"
	"github.com/LeadWire-CRM/automation_layer/internal/middleware"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

// ServerConfig controls the middleware chain around the API handler.
type ServerConfig struct {
	Tokens          []string
	JWTSecret       string
	AuditMaxEntries int
	AuditLogPath    string
	CORSOrigins     []string
	RateLimitRPS    float64
	RateLimitBurst  int
}

// NewServer assembles the full HTTP surface: handler, auth, audit, rate
// limiting, CORS, request IDs and metrics instrumentation.
func NewServer(application *app.Application, cfg ServerConfig, log *logger.Logger) (http.Handler, error) {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	sink, err := newFileAuditSink(cfg.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("open audit sink: %w", err)
	}
	audit := newAuditLog(cfg.AuditMaxEntries, sink)

	var jwtAuth *middleware.AuthMiddleware
	if cfg.JWTSecret != "" {
		jwtAuth = middleware.NewAuthMiddleware([]byte(cfg.JWTSecret), log, []string{"/healthz"})
	}
	if len(cfg.Tokens) == 0 && jwtAuth == nil {
		log.Warn("AUTH_TOKENS and AUTH_JWT_SECRET unset; API is open")
	}

	handler := NewHandler(application, audit)
	chain := wrapWithAuth(handler, cfg.Tokens, jwtAuth)
	chain = wrapWithAudit(chain, audit)

	if cfg.RateLimitRPS > 0 {
		chain = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log).Handler(chain)
	}
	if len(cfg.CORSOrigins) > 0 {
		chain = middleware.NewCORSMiddleware(cfg.CORSOrigins).Handler(chain)
	}
	chain = middleware.NewRequestIDMiddleware(log).Handler(chain)

	return metrics.InstrumentHandler(chain), nil
}
