package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/audit"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/config"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/database"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/notify"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/queue"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/queue/workers"
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

	var auditSvc *audit.Service
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Warn("database unavailable, batch results will not be audited", "error", err)
	} else {
		defer db.Close()
		auditSvc = audit.NewService(db)
		if err := auditSvc.EnsureSchema(ctx); err != nil {
			slog.Warn("audit schema setup failed", "error", err)
		}
	}

	opts := safety.Options{
		CacheTTL:      cfg.Cache.TTL,
		CacheCapacity: cfg.Cache.Capacity,
		Workers:       cfg.Batch.Workers,
		Registry:      prometheus.NewRegistry(),
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

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()

	var notifier *notify.Dispatcher
	if cfg.Alerts.ParentWebhookURL != "" {
		notifier = notify.NewDispatcher(cfg.Alerts.ParentWebhookURL, cfg.Alerts.ParentWebhookSecret)
	}

	scanWorker := workers.NewScanWorker(engine, auditSvc, notifier)
	registry.Register(queue.TypeBatchScan, asynq.HandlerFunc(scanWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
