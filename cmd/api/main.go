package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/api"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/audit"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/cache"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/config"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/database"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/notify"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/queue"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/safety"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/scorer"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Database connection (optional — audit trail is skipped without it)
	var auditSvc *audit.Service
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Warn("database unavailable, running without audit trail", "error", err)
		db = nil
	} else {
		defer db.Close()
		auditSvc = audit.NewService(db)
		if err := auditSvc.EnsureSchema(ctx); err != nil {
			slog.Warn("audit schema setup failed", "error", err)
		}
	}

	// Redis connection (optional — shared cache tier and async batches need it)
	var remote safety.RemoteCache
	var queueClient *queue.Client
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running with in-process cache only", "error", err)
		rdb.Close()
		rdb = nil
	} else {
		defer rdb.Close()
		remote = cache.NewCache(rdb)
		queueClient = queue.NewClient(cfg.Redis)
		defer queueClient.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := safety.Options{
		CacheTTL:      cfg.Cache.TTL,
		CacheCapacity: cfg.Cache.Capacity,
		RemoteCache:   remote,
		Workers:       cfg.Batch.Workers,
		Registry:      registry,
	}
	if cfg.Scorer.OpenAIKey != "" {
		opts.ToxicityScorer = scorer.NewOpenAIModeration(cfg.Scorer.OpenAIKey)
	}
	if cfg.Scorer.AnthropicKey != "" {
		opts.EmotionClassifier = scorer.NewAnthropicEmotion(cfg.Scorer.AnthropicKey, cfg.Scorer.AnthropicModel)
	}

	engine, err := safety.NewEngine(cfg.Safety, opts)
	if err != nil {
		slog.Error("failed to build safety engine", "error", err)
		os.Exit(1)
	}

	var notifier *notify.Dispatcher
	if cfg.Alerts.ParentWebhookURL != "" {
		notifier = notify.NewDispatcher(cfg.Alerts.ParentWebhookURL, cfg.Alerts.ParentWebhookSecret)
	}

	router := api.NewRouter(db, rdb, cfg, engine, auditSvc, queueClient, notifier, registry)
	handler := router.Setup()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting safety API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
