package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gearbox-erp/gearbox/internal/parts"
)

// LowStockScanJob sweeps the part ledger and republishes a signal for every
// part sitting at or below its reorder threshold. It backstops the inline
// signals emitted on reservation and adjustment, which can be lost when the
// broker is down.
type LowStockScanJob struct {
	Pool      *pgxpool.Pool
	Publisher parts.LowStockPublisher
	Logger    *slog.Logger
	clock     func() time.Time
}

// NewLowStockScanJob initialises the scan handler.
func NewLowStockScanJob(pool *pgxpool.Pool, publisher parts.LowStockPublisher, logger *slog.Logger) *LowStockScanJob {
	return &LowStockScanJob{
		Pool:      pool,
		Publisher: publisher,
		Logger:    logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one ledger sweep.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = 500
	}

	start := j.now()
	logger := j.logger()
	logger.Info("starting low stock scan", slog.Int("limit", payload.Limit))

	rows, err := j.Pool.Query(ctx, `SELECT id, code, description, quantity_on_hand, minimum_quantity
FROM parts WHERE quantity_on_hand <= minimum_quantity ORDER BY quantity_on_hand - minimum_quantity ASC LIMIT $1`, payload.Limit)
	if err != nil {
		logger.Error("scan query failed", slog.Any("error", err))
		return err
	}
	defer rows.Close()

	var lowParts []parts.Part
	for rows.Next() {
		var p parts.Part
		if err := rows.Scan(&p.ID, &p.Code, &p.Description, &p.QuantityOnHand, &p.MinimumQuantity); err != nil {
			return err
		}
		lowParts = append(lowParts, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	published := 0
	if j.Publisher != nil {
		for _, p := range lowParts {
			if err := j.Publisher.PublishLowStock(ctx, parts.NewLowStockEvent(p)); err != nil {
				logger.Warn("publish failed", slog.Int64("part_id", p.ID), slog.Any("error", err))
				continue
			}
			published++
		}
	}

	logger.Info("completed low stock scan",
		slog.Int("found", len(lowParts)),
		slog.Int("published", published),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}

func (j *LowStockScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
