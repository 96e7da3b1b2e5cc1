package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/andre-fig/backoffice/handlers"
	"github.com/andre-fig/backoffice/internal/config"
	"github.com/andre-fig/backoffice/services"
	"github.com/andre-fig/backoffice/workers"
)

// App holds the wired dependencies shared by the server and worker binaries
type App struct {
	AppChatDB    *sql.DB
	BackofficeDB *sql.DB
	Redis        *redis.Client // nil when no redis is configured

	Directory services.Directory
	Redirects *services.RedirectService
	Worker    *workers.RedirectWorker

	Logger *zap.Logger
}

// New opens connections and builds the service graph from cfg
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if cfg.AppChatDatabaseURL == "" {
		return nil, errors.New("APPCHAT_DATABASE_URL (or DATABASE_URL) is required")
	}
	if cfg.Directory.BaseURL == "" {
		return nil, errors.New("DIRECTORY_BASE_URL is required")
	}

	a := &App{Logger: logger}

	var err error
	a.AppChatDB, err = openPostgres(ctx, cfg.AppChatDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("appchat database: %w", err)
	}

	if cfg.BackofficeDatabaseURL == cfg.AppChatDatabaseURL {
		a.BackofficeDB = a.AppChatDB
	} else {
		a.BackofficeDB, err = openPostgres(ctx, cfg.BackofficeDatabaseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("backoffice database: %w", err)
		}
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		a.Redis = redis.NewClient(opts)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
	}

	client := services.NewDirectoryClient(cfg.Directory.BaseURL, cfg.Directory.Token, cfg.Directory.Timeout)
	if a.Redis != nil {
		a.Directory = services.NewCachedDirectory(client, a.Redis, cfg.Directory.CacheTTL, logger.Named("directory"))
	} else {
		logger.Warn("No redis configured, directory lookups are not cached")
		a.Directory = client
	}

	store := services.NewScheduledRedirectRepository(a.BackofficeDB)
	a.Redirects = services.NewRedirectService(
		store,
		services.NewAccountRepository(a.AppChatDB),
		services.NewChatRepository(a.AppChatDB),
		a.Directory,
		logger.Named("redirects"),
	)

	opts := workers.RedirectWorkerOptions{
		Interval:    cfg.Reconcile.Interval,
		Concurrency: cfg.Reconcile.Concurrency,
		ItemTimeout: cfg.Reconcile.ItemTimeout,
	}
	if a.Redis != nil {
		opts.Locker = workers.NewRedisLocker(a.Redis, cfg.Reconcile.LockKey, cfg.Reconcile.LockTTL)
	}
	a.Worker = workers.NewRedirectWorker(a.Redirects, store, opts, logger.Named("reconcile"))

	return a, nil
}

// HealthChecks returns the probes served at /health
func (a *App) HealthChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{
		"appchat_db":    a.AppChatDB.PingContext,
		"backoffice_db": a.BackofficeDB.PingContext,
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.BackofficeDB != nil && a.BackofficeDB != a.AppChatDB {
		_ = a.BackofficeDB.Close()
	}
	if a.AppChatDB != nil {
		_ = a.AppChatDB.Close()
	}
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	dsn, err := withUTC(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	pg, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pg.PingContext(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pg, nil
}

// withUTC adds timezone=UTC to a DSN so every pooled connection starts its
// session in UTC. An explicit timezone is kept.
func withUTC(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", err
		}
		q := u.Query()
		if q.Get("timezone") == "" {
			q.Set("timezone", "UTC")
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	if strings.Contains(dsn, "timezone=") {
		return dsn, nil
	}
	return strings.TrimSpace(dsn + " timezone=UTC"), nil
}
