package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-wms/meridian-wms/internal/app"
	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/observability"
	"github.com/meridian-wms/meridian-wms/internal/orderpoint"
	"github.com/meridian-wms/meridian-wms/internal/platform/cache"
	"github.com/meridian-wms/meridian-wms/internal/platform/db"
	"github.com/meridian-wms/meridian-wms/internal/purchasing"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/supply"
	"github.com/meridian-wms/meridian-wms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	metrics := observability.NewMetrics()
	audit := shared.NewAuditLogger(pool)

	masterdataService := masterdata.NewService(masterdata.NewRepository(pool))
	orderPointService := orderpoint.NewService(
		orderpoint.NewRepository(pool),
		masterdata.NewRepository(pool),
		audit,
		orderpoint.ServiceConfig{DefaultCompanyID: cfg.DefaultCompanyID},
	)
	purchasingService := purchasing.NewService(purchasing.NewRepository(pool), logger)
	supplyService := supply.NewService(
		supply.NewRepository(pool),
		supply.NewPlanner(logger, supply.PlannerConfig{MaxPasses: cfg.SupplyMaxPasses}),
		purchasingService,
		shared.NewRunLock(redisClient, cfg.SupplyLockTTL),
		shared.NewWarningStore(redisClient, cfg.SupplyWarningTTL),
		audit,
		metrics,
		logger,
		supply.ServiceConfig{DefaultCompanyID: cfg.DefaultCompanyID},
	)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		OrderPointHandler: orderpoint.NewHandler(logger, orderPointService),
		SupplyHandler:     supply.NewHandler(logger, supplyService, shared.NewIdempotencyStore(pool)),
		PurchasingHandler: purchasing.NewHandler(logger, purchasingService),
		MasterDataHandler: masterdata.NewHandler(logger, masterdataService),
		JobsHandler:       jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
