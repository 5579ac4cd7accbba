package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-crm/meridian-authz/internal/app"
	"github.com/meridian-crm/meridian-authz/internal/grants"
	"github.com/meridian-crm/meridian-authz/internal/platform/db"
	"github.com/meridian-crm/meridian-authz/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	grantsRepo := grants.NewRepository(pool)
	jobMetrics := jobs.NewMetrics(nil)

	purgeTask, err := jobs.NewGrantPurgeTask(jobs.GrantPurgePayload{Retention: cfg.GrantRetention})
	if err != nil {
		logger.Error("build purge task", slog.Any("error", err))
		os.Exit(1)
	}

	purgeHandler := jobMetrics.Instrument(jobs.TaskGrantPurge, jobs.NewGrantPurgeHandler(grantsRepo, logger))
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskGrantPurge, Handler: purgeHandler},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.PurgeCron, Task: purgeTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
