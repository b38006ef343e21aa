package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/gearbox-erp/gearbox/internal/app"
	"github.com/gearbox-erp/gearbox/internal/notify"
	"github.com/gearbox-erp/gearbox/internal/platform/cache"
	"github.com/gearbox-erp/gearbox/internal/platform/db"
	"github.com/gearbox-erp/gearbox/internal/quotes"
	"github.com/gearbox-erp/gearbox/internal/shared"
	"github.com/gearbox-erp/gearbox/internal/workorders"
	"github.com/gearbox-erp/gearbox/jobs"
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

	publisher := notify.NewRedisPublisher(redisClient, cfg.LowStockChannel, nil)
	auditLogger := shared.NewAuditLogger(pool)

	quotesRepo := quotes.NewRepository(pool)
	quotesService := quotes.NewService(quotesRepo, nil, auditLogger, logger)

	workOrderStore := workorders.NewStore(pool, cfg.ConvertRetries)
	workOrderService := workorders.NewService(workOrderStore, auditLogger, publisher, logger, cfg.WorkOrderDueDays)

	lowStockJob := jobs.NewLowStockScanJob(pool, publisher, logger)
	expiryJob := jobs.NewQuoteExpiryJob(quotesService, logger)
	overdueJob := jobs.NewWorkOrderOverdueJob(workOrderService, logger)

	scanTask, err := jobs.NewLowStockScanTask(500)
	if err != nil {
		logger.Error("build scan task", slog.Any("error", err))
		os.Exit(1)
	}
	expiryTask, err := jobs.NewQuoteExpiryTask()
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}
	overdueTask, err := jobs.NewWorkOrderOverdueTask()
	if err != nil {
		logger.Error("build overdue task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
			{Type: jobs.TaskQuoteExpiry, Handler: expiryJob.Handle},
			{Type: jobs.TaskWorkOrderOverdue, Handler: overdueJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 6 * * *", Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 0 * * *", Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 0 * * *", Task: overdueTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
