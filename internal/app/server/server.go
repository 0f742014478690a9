package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"accessgov/internal/domain/audit"
	"accessgov/internal/domain/auth"
	"accessgov/internal/domain/campaign"
	"accessgov/internal/domain/directory"
	"accessgov/internal/domain/notifications"
	"accessgov/internal/domain/reports"
	"accessgov/internal/domain/review"
	"accessgov/internal/domain/sod"
	"accessgov/internal/platform/cache"
	"accessgov/internal/platform/config"
	"accessgov/internal/platform/db"
	"accessgov/internal/platform/jobs"
	"accessgov/internal/platform/metrics"
	"accessgov/internal/transport/http/api"
	"accessgov/internal/transport/http/handlers/auditlog"
	"accessgov/internal/transport/http/handlers/authn"
	"accessgov/internal/transport/http/handlers/campaigns"
	directoryhandler "accessgov/internal/transport/http/handlers/directory"
	notificationshandler "accessgov/internal/transport/http/handlers/notifications"
	reportshandler "accessgov/internal/transport/http/handlers/reports"
	"accessgov/internal/transport/http/handlers/reviews"
	"accessgov/internal/transport/http/handlers/sodrules"
	"accessgov/internal/transport/http/middleware"
)

type App struct {
	cfg    config.Config
	pool   *pgxpool.Pool
	cache  *cache.Service
	jobs   *jobs.Runner
	server *http.Server
	cancel context.CancelFunc
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, "migrations"); err != nil {
			pool.Close()
			return nil, err
		}
	}
	if cfg.RunSeed && cfg.SeedAdminEmail != "" {
		if err := db.Seed(ctx, pool, cfg.SeedOrgName, cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
			pool.Close()
			return nil, err
		}
	}

	cacheSvc, err := cache.Connect(ctx, cfg.RedisAddr, cfg.StatsCacheTTL)
	if err != nil {
		slog.Warn("redis unavailable, stats caching disabled", "err", err)
		cacheSvc = nil
	}

	auditSvc := audit.New(pool)
	directorySvc := directory.New(pool)
	notifSvc := notifications.New(pool)
	sodSvc := sod.New(pool, notifSvc)
	campaignSvc := campaign.New(pool, cacheSvc, sodSvc)
	reviewSvc := review.New(pool, campaignSvc)
	reportsSvc := reports.New(pool, directorySvc, campaignSvc, sodSvc)
	authStore := auth.NewStore(pool)

	if cfg.MetricsEnabled {
		metrics.Init()
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	runner := jobs.New(pool, notifSvc, cfg.ReminderInterval)
	runner.Start(jobCtx)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Logger)
	router.Use(middleware.SecurityHeaders)
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
	if cfg.MetricsEnabled {
		router.Use(metrics.Instrument)
	}
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			api.Fail(w, http.StatusServiceUnavailable, "unhealthy", "database unreachable", middleware.GetRequestID(r.Context()))
			return
		}
		api.Success(w, map[string]string{"status": "ok"}, middleware.GetRequestID(r.Context()))
	})
	if cfg.MetricsEnabled {
		router.Handle("/metrics", metrics.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", authn.New(authStore, auditSvc, cfg.JWTSecret).Mount)
		r.Route("/campaigns", campaigns.New(campaignSvc, reviewSvc, notifSvc, auditSvc).Mount)
		r.Route("/reviews", reviews.New(reviewSvc, auditSvc).Mount)
		r.Route("/sod", sodrules.New(sodSvc, auditSvc).Mount)
		r.Route("/directory", directoryhandler.New(directorySvc, auditSvc).Mount)
		r.Route("/reports", reportshandler.New(reportsSvc).Mount)
		r.Route("/notifications", notificationshandler.New(notifSvc).Mount)
		r.Route("/audit", auditlog.New(auditSvc).Mount)
	})

	return &App{
		cfg:   cfg,
		pool:  pool,
		cache: cacheSvc,
		jobs:  runner,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		cancel: cancel,
	}, nil
}

// Handler exposes the assembled router for in-process tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Run() error {
	slog.Info("server listening", "addr", a.cfg.Addr, "env", a.cfg.Environment)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Close() {
	a.cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", "err", err)
	}
	a.jobs.Wait()
	a.cache.Close()
	a.pool.Close()
}
