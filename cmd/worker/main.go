package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meridian-gov/meridian/internal/app"
	jobmetrics "github.com/meridian-gov/meridian/internal/jobs"
	"github.com/meridian-gov/meridian/internal/ledger"
	"github.com/meridian-gov/meridian/internal/platform/db"
	"github.com/meridian-gov/meridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	store := ledger.NewPostgresStore(pool)
	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)

	guard := ledger.NewRetentionGuard(ledger.RetentionConfig{
		Store:     store,
		Logger:    logger,
		Retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	})
	verifier := ledger.NewVerifier(store, logger, nil)

	sweepHandler := jobs.NewRetentionSweepHandler(guard, logger, metrics)
	verifyHandler := jobs.NewChainVerifyHandler(verifier, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRetentionSweep, Handler: sweepHandler},
			{Type: jobs.TaskChainVerify, Handler: verifyHandler},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: jobs.NewRetentionSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: jobs.NewChainVerifyTask(), Options: []asynq.Option{asynq.MaxRetry(0)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
