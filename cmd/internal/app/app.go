// Package app wires the pdfgate server runtime: config, logging, persistence,
// HTTP routes and the admin device feed.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pdfgate/cmd/identity"
	"pdfgate/cmd/internal/accounts"
	"pdfgate/cmd/internal/api"
	"pdfgate/cmd/internal/auth/session"
	"pdfgate/cmd/internal/dbschema"
	"pdfgate/cmd/internal/device"
	"pdfgate/cmd/internal/library"
	"pdfgate/cmd/internal/ratelimit"
	"pdfgate/cmd/internal/realtime"
	"pdfgate/cmd/internal/storage"
	"pdfgate/cmd/internal/viewsession"
	"pdfgate/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// App is the pdfgate server runtime. It owns the HTTP server, the DB pool,
// the Redis client and the view session sweeper.
type App struct {
	cfg Config
	log Logger

	db    *pgxpool.Pool
	redis *redis.Client

	metrics *api.Metrics
	api     *api.Handler
	sweeper *viewsession.Sweeper
}

// backends is the set of stores picked for the run: Postgres when a
// database URL is configured, in-memory otherwise.
type backends struct {
	pool *pgxpool.Pool

	users    identity.Store
	devices  device.Store
	sessions session.Store
	library  library.Store
	views    viewsession.Store
	auditor  api.Auditor
}

func (b backends) close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func openBackends(ctx context.Context, cfg Config, log Logger, hasher identity.PasswordHasher) (backends, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return backends{
			users:    identity.NewMemoryStore(hasher),
			devices:  device.NewMemoryStore(),
			sessions: session.NewMemoryStore(),
			library:  library.NewMemoryStore(),
			views:    viewsession.NewMemoryStore(),
			auditor:  api.NewLogAuditor(log),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return backends{}, fmt.Errorf("db: %w", err)
	}
	if cfg.AutoMigrate {
		if _, err := dbschema.Migrate(ctx, pool, dbschema.Schema, log); err != nil {
			pool.Close()
			return backends{}, fmt.Errorf("db migrate: %w", err)
		}
	}

	users, err := identity.NewPostgresStore(pool, identity.WithHasher(hasher))
	if err != nil {
		pool.Close()
		return backends{}, err
	}

	log.Info("db.enabled.postgres_store")
	return backends{
		pool:     pool,
		users:    users,
		devices:  device.NewPostgresStore(pool),
		sessions: session.NewPostgresStore(pool),
		library:  library.NewPostgresStore(pool),
		views:    viewsession.NewPostgresStore(pool),
		auditor:  api.NewPostgresAuditor(pool, log),
	}, nil
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	tokens, err := session.NewAccessTokenManager(sessCfg)
	if err != nil {
		return nil, fmt.Errorf("access tokens: %w", err)
	}
	hasher, err := password.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("password config: %w", err)
	}

	b, err := openBackends(ctx, cfg, log, hasher)
	if err != nil {
		return nil, err
	}

	a, err := wire(ctx, cfg, log, b, sessCfg, tokens, hasher)
	if err != nil {
		b.close()
		return nil, err
	}
	return a, nil
}

func wire(
	ctx context.Context,
	cfg Config,
	log Logger,
	b backends,
	sessCfg session.Config,
	tokens session.AccessTokenManager,
	hasher identity.PasswordHasher,
) (*App, error) {
	verifier, err := identity.NewVerifier(b.users, hasher, log)
	if err != nil {
		return nil, err
	}

	metrics := api.NewMetrics()
	hub := realtime.NewHub(log, metrics.FeedDropped)

	// The session service gates on the registry and the registry revokes
	// sessions, so the revoker is bound after both exist.
	registry := device.NewRegistry(b.devices, log, device.WithPublisher(hub))
	sessions := session.NewService(sessCfg, b.sessions, tokens, registry, log)
	registry.UseSessionRevoker(sessions)

	blobs, err := storage.NewDirStore(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	lib := library.NewService(b.library, blobs, b.users, cfg.UploadMaxBytes, log)

	viewCfg := viewsession.Config{
		TTL:           cfg.ViewTTL,
		TokenBytes:    cfg.ViewTokenBytes,
		SweepInterval: cfg.ViewSweepInterval,
	}
	issuer := viewsession.NewIssuer(viewCfg, b.views, lib, log)
	gateway := viewsession.NewGateway(b.views, lib, blobs, log)

	acct, err := accounts.NewService(b.users, lib,
		accounts.WithViewSessions(issuer),
		accounts.WithDevices(registry),
		accounts.WithSessions(sessions),
		accounts.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	feed := realtime.NewWSGateway(log, hub, api.FeedAuthenticator, realtime.LoadGatewayConfigFromEnv())

	apiCfg := api.LoadConfigFromEnv()
	apiCfg.UploadMaxBytes = cfg.UploadMaxBytes

	var rdb *redis.Client
	ipLimiter := ratelimit.Limiter(ratelimit.NewMemoryLimiter(apiCfg.LoginIPMax, apiCfg.LoginIPWindow))
	emailLimiter := ratelimit.Limiter(ratelimit.NewMemoryLimiter(apiCfg.LoginEmailMax, apiCfg.LoginEmailWindow))
	if cfg.RedisAddr != "" {
		rdb, err = NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		ipLimiter = ratelimit.NewRedisLimiter(rdb, "pdfgate:login:ip:", apiCfg.LoginIPMax, apiCfg.LoginIPWindow)
		emailLimiter = ratelimit.NewRedisLimiter(rdb, "pdfgate:login:email:", apiCfg.LoginEmailMax, apiCfg.LoginEmailWindow)
		log.Info("redis.enabled.rate_limiter", "addr", cfg.RedisAddr)
	}

	h, err := api.NewHandler(log, apiCfg, api.Deps{
		Users:        b.users,
		Verifier:     verifier,
		Sessions:     sessions,
		Devices:      registry,
		Library:      lib,
		Accounts:     acct,
		Views:        issuer,
		Gateway:      gateway,
		Feed:         feed,
		IPLimiter:    ipLimiter,
		EmailLimiter: emailLimiter,
		Auditor:      b.auditor,
		Metrics:      metrics,
	})
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}

	return &App{
		cfg:     cfg,
		log:     log,
		db:      b.pool,
		redis:   rdb,
		metrics: metrics,
		api:     h,
		sweeper: viewsession.NewSweeper(b.views, cfg.ViewSweepInterval, log, metrics.SweptViewSessions),
	}, nil
}

// Handler returns the fully routed HTTP handler.
func (a *App) Handler() http.Handler {
	return a.routes()
}

// Run starts the HTTP server and the sweeper and blocks until context
// cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 60*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 60*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	a.sweeper.Start(sweepCtx)

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.db != nil,
		"redis_enabled", a.redis != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.Close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
	}
	a.Close()

	a.log.Info("server.stopped")
	return err
}

// Close releases the DB pool and the Redis client.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis.close.fail", "err", err)
		}
		a.redis = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
