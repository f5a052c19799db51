package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/api/handlers"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/api/middleware"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/audit"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/auth"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/config"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/notify"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/queue"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/safety"
)

type Router struct {
	mux      *chi.Mux
	db       *pgxpool.Pool
	redis    *redis.Client
	cfg      *config.Config
	engine   *safety.Engine
	auditSvc *audit.Service
	queueC   *queue.Client
	notifier *notify.Dispatcher
	registry *prometheus.Registry
	jwt      *auth.JWTMiddleware
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, engine *safety.Engine, auditSvc *audit.Service, qc *queue.Client, notifier *notify.Dispatcher, reg *prometheus.Registry) *Router {
	return &Router{
		mux:      chi.NewRouter(),
		db:       db,
		redis:    rdb,
		cfg:      cfg,
		engine:   engine,
		auditSvc: auditSvc,
		queueC:   qc,
		notifier: notifier,
		registry: reg,
		jwt:      auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health and scrape endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if rt.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))
	}

	safetyH := handlers.NewSafetyHandler(rt.engine, rt.auditSvc, rt.queueC, rt.notifier)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		r.Route("/safety", func(r chi.Router) {
			r.Post("/analyze", safetyH.Analyze)
			r.Post("/analyze/batch", safetyH.AnalyzeBatch)
			r.Get("/metrics", safetyH.Metrics)
			r.Get("/events", safetyH.Events)

			r.Group(func(r chi.Router) {
				r.Use(rt.jwt.RequireRole("admin"))
				r.Get("/config", safetyH.GetConfig)
				r.Post("/config/reload", safetyH.ReloadConfig)
			})
		})
	})

	return r
}
