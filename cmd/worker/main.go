package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-wms/meridian-wms/internal/app"
	"github.com/meridian-wms/meridian-wms/internal/platform/cache"
	"github.com/meridian-wms/meridian-wms/internal/platform/db"
	"github.com/meridian-wms/meridian-wms/internal/purchasing"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/supply"
	"github.com/meridian-wms/meridian-wms/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	purchasingService := purchasing.NewService(purchasing.NewRepository(pool), logger)
	supplyService := supply.NewService(
		supply.NewRepository(pool),
		supply.NewPlanner(logger, supply.PlannerConfig{MaxPasses: cfg.SupplyMaxPasses}),
		purchasingService,
		shared.NewRunLock(redisClient, cfg.SupplyLockTTL),
		shared.NewWarningStore(redisClient, cfg.SupplyWarningTTL),
		shared.NewAuditLogger(pool),
		nil,
		logger,
		supply.ServiceConfig{DefaultCompanyID: cfg.DefaultCompanyID},
	)

	supplyTask, err := jobs.NewSupplyStockTask(jobs.SupplyStockPayload{
		CompanyID:    cfg.DefaultCompanyID,
		ScheduledFor: time.Now().UTC(),
	})
	if err != nil {
		logger.Error("build supply task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSupplyStock, Handler: jobs.NewSupplyStockHandler(supplyService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SupplyCron, Task: supplyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
