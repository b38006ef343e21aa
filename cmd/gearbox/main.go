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

	"github.com/gearbox-erp/gearbox/internal/app"
	"github.com/gearbox-erp/gearbox/internal/clients"
	"github.com/gearbox-erp/gearbox/internal/notify"
	"github.com/gearbox-erp/gearbox/internal/observability"
	"github.com/gearbox-erp/gearbox/internal/parts"
	"github.com/gearbox-erp/gearbox/internal/platform/cache"
	"github.com/gearbox-erp/gearbox/internal/platform/db"
	"github.com/gearbox-erp/gearbox/internal/quotes"
	"github.com/gearbox-erp/gearbox/internal/shared"
	"github.com/gearbox-erp/gearbox/internal/workorders"
	"github.com/gearbox-erp/gearbox/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, low stock signals disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	var lowStock parts.LowStockPublisher
	if redisClient != nil {
		lowStock = notify.NewRedisPublisher(redisClient, cfg.LowStockChannel, metrics)
	}

	auditLogger := shared.NewAuditLogger(pool)

	partsRepo := parts.NewRepository(pool)
	partsService := parts.NewService(partsRepo, auditLogger, lowStock, logger)
	partsHandler := parts.NewHandler(logger, partsService)

	clientsRepo := clients.NewRepository(pool)
	clientsService := clients.NewService(clientsRepo, auditLogger, logger)
	clientsHandler := clients.NewHandler(logger, clientsService)

	quotesRepo := quotes.NewRepository(pool)
	quotesService := quotes.NewService(quotesRepo, partsService, auditLogger, logger)
	quotesHandler := quotes.NewHandler(logger, quotesService)

	workOrderStore := workorders.NewStore(pool, cfg.ConvertRetries)
	workOrderService := workorders.NewService(workOrderStore, auditLogger, lowStock, logger, cfg.WorkOrderDueDays)
	workOrdersHandler := workorders.NewHandler(logger, workOrderService, metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		ClientsHandler:    clientsHandler,
		PartsHandler:      partsHandler,
		QuotesHandler:     quotesHandler,
		WorkOrdersHandler: workOrdersHandler,
		JobHandler:        jobHandler,
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
