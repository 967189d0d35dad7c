// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the full configuration for the automation layer process.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Logging   LoggingConfig
	Auth      AuthConfig
	Messaging MessagingConfig
	Engine    EngineConfig
	Audit     AuditConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string  `env:"HTTP_HOST,default=0.0.0.0"`
	Port            int     `env:"HTTP_PORT,default=8080"`
	ReadTimeoutSec  int     `env:"HTTP_READ_TIMEOUT,default=15"`
	WriteTimeoutSec int     `env:"HTTP_WRITE_TIMEOUT,default=30"`
	CORSOrigins     string  `env:"CORS_ALLOWED_ORIGINS,default=*"`
	RateLimitRPS    float64 `env:"RATE_LIMIT_RPS,default=50"`
	RateLimitBurst  int     `env:"RATE_LIMIT_BURST,default=100"`
}

// Address returns the host:port pair the server binds to.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig controls the optional Postgres store. An empty DSN keeps
// the service on in-memory storage.
type DatabaseConfig struct {
	Driver             string `env:"DATABASE_DRIVER,default=postgres"`
	DSN                string `env:"DATABASE_URL"`
	MaxOpenConns       int    `env:"DATABASE_MAX_OPEN_CONNS,default=20"`
	MaxIdleConns       int    `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetimeSec int    `env:"DATABASE_CONN_MAX_LIFETIME,default=300"`
	Migrate            bool   `env:"DATABASE_MIGRATE,default=true"`
}

// RedisConfig controls the optional workflow-list cache.
type RedisConfig struct {
	URL         string `env:"REDIS_URL"`
	CacheTTLSec int    `env:"REDIS_CACHE_TTL,default=30"`
}

// LoggingConfig mirrors pkg/logger.LoggingConfig.
type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL,default=info"`
	Format     string `env:"LOG_FORMAT,default=text"`
	Output     string `env:"LOG_OUTPUT,default=stderr"`
	FilePrefix string `env:"LOG_FILE_PREFIX"`
}

// AuthConfig controls API authentication. Tokens is a comma-separated list
// of static bearer tokens; JWTSecret additionally enables HS256 JWT
// verification when set. With neither set the API is open (dev mode).
type AuthConfig struct {
	Tokens    string `env:"AUTH_TOKENS"`
	JWTSecret string `env:"AUTH_JWT_SECRET"`
}

// TokenList splits the configured static tokens.
func (c AuthConfig) TokenList() []string {
	if c.Tokens == "" {
		return nil
	}
	parts := strings.Split(c.Tokens, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MessagingConfig holds provider credentials and the loopback base URL the
// engine uses for send_* actions. Providers with empty credentials stay
// unconfigured and sends on their channel fail soft.
type MessagingConfig struct {
	BaseURL string `env:"MESSAGING_BASE_URL"`
	Token   string `env:"MESSAGING_TOKEN"`

	WhatsAppBaseURL string `env:"WHATSAPP_API_URL,default=https://graph.facebook.com/v19.0"`
	WhatsAppToken   string `env:"WHATSAPP_TOKEN"`
	WhatsAppPhoneID string `env:"WHATSAPP_PHONE_ID"`
	WhatsAppIDPath  string `env:"WHATSAPP_MESSAGE_ID_PATH,default=$.messages[0].id"`

	TwilioBaseURL string `env:"TWILIO_API_URL,default=https://api.twilio.com"`
	TwilioSID     string `env:"TWILIO_ACCOUNT_SID"`
	TwilioToken   string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFrom    string `env:"TWILIO_FROM_NUMBER"`

	BrevoBaseURL string `env:"BREVO_API_URL,default=https://api.brevo.com"`
	BrevoAPIKey  string `env:"BREVO_API_KEY"`
	BrevoSender  string `env:"BREVO_SENDER_EMAIL"`
}

// EngineConfig controls workflow evaluation.
type EngineConfig struct {
	SchedulerIntervalSec int `env:"SCHEDULER_INTERVAL,default=30"`
	ActionTimeoutSec     int `env:"ACTION_TIMEOUT,default=10"`
}

// SchedulerInterval returns the due-scan period.
func (c EngineConfig) SchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalSec) * time.Second
}

// ActionTimeout returns the per-action deadline.
func (c EngineConfig) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutSec) * time.Second
}

// AuditConfig controls the request audit trail.
type AuditConfig struct {
	LogPath    string `env:"AUDIT_LOG_PATH"`
	MaxEntries int    `env:"AUDIT_MAX_ENTRIES,default=512"`
}

// Load decodes configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit rps must not be negative")
	}
	if c.Database.DSN != "" && c.Database.Driver == "" {
		return fmt.Errorf("database driver is required when a dsn is set")
	}
	if c.Engine.SchedulerIntervalSec <= 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}
	return nil
}
