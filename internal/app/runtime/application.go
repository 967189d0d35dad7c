package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	app "github.com/LeadWire-CRM/automation_layer/internal/app"
	"github.com/LeadWire-CRM/automation_layer/internal/app/httpapi"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage/postgres"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage/rediscache"
	"github.com/LeadWire-CRM/automation_layer/internal/config"
	"github.com/LeadWire-CRM/automation_layer/internal/platform/migrations"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg    *config.Config
	log    *logger.Logger
	app    *app.Application
	server *http.Server
	db     *sqlx.DB
}

// NewApplication constructs a new application instance with default wiring.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	stores, db, err := buildStores(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	application, err := app.New(stores, app.Options{
		Messaging: cfg.Messaging,
		Engine:    cfg.Engine,
	}, log)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("build application: %w", err)
	}

	handler, err := httpapi.NewServer(application, httpapi.ServerConfig{
		Tokens:          cfg.Auth.TokenList(),
		JWTSecret:       cfg.Auth.JWTSecret,
		AuditMaxEntries: cfg.Audit.MaxEntries,
		AuditLogPath:    cfg.Audit.LogPath,
		CORSOrigins:     splitOrigins(cfg.Server.CORSOrigins),
		RateLimitRPS:    cfg.Server.RateLimitRPS,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
	}, log)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("build http server: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	return &Application{
		cfg:    cfg,
		log:    log,
		app:    application,
		server: server,
		db:     db,
	}, nil
}

// Run starts the background services and the HTTP server, then blocks until
// the context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, the background services and the
// database connection.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping services")
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}

	return nil
}

// buildStores opens the configured persistence backend. With no DATABASE_URL
// everything stays in memory, which is the development default.
func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, *sqlx.DB, error) {
	if cfg.Database.DSN == "" {
		log.Warn("DATABASE_URL not set; using in-memory storage")
		return app.Stores{}, nil, nil
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return app.Stores{}, nil, err
	}

	if cfg.Database.Migrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := migrations.Apply(ctx, db.DB); err != nil {
			db.Close()
			return app.Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	store := postgres.New(db)
	var workflowStore storage.WorkflowStore = store
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			db.Close()
			return app.Stores{}, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// The cache falls back to postgres per operation, so a dead redis
			// degrades performance rather than availability.
			log.WithError(err).Warn("redis unreachable; workflow cache disabled until it recovers")
		}
		cancel()
		workflowStore = rediscache.New(store, rdb, time.Duration(cfg.Redis.CacheTTLSec)*time.Second, log)
	}

	return app.Stores{
		Accounts:   store,
		Leads:      store,
		Workflows:  workflowStore,
		Executions: store,
		ActionLogs: store,
		Tasks:      store,
	}, db, nil
}

func openDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSec) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
