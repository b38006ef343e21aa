package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// OverdueSweeper flips payment to overdue on completed, unpaid work orders
// past their due date.
type OverdueSweeper interface {
	SweepOverdue(ctx context.Context, now time.Time) (int64, error)
}

// WorkOrderOverdueJob runs the payment overdue sweep.
type WorkOrderOverdueJob struct {
	Sweeper OverdueSweeper
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewWorkOrderOverdueJob initialises the overdue handler.
func NewWorkOrderOverdueJob(sweeper OverdueSweeper, logger *slog.Logger) *WorkOrderOverdueJob {
	return &WorkOrderOverdueJob{
		Sweeper: sweeper,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one overdue sweep.
func (j *WorkOrderOverdueJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("work order overdue: handler not configured")
	}
	start := j.now()
	logger := j.logger()

	n, err := j.Sweeper.SweepOverdue(ctx, start)
	if err != nil {
		logger.Error("overdue sweep failed", slog.Any("error", err))
		return err
	}
	logger.Info("completed overdue sweep",
		slog.Int64("marked", n),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *WorkOrderOverdueJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskWorkOrderOverdue))
	}
	return slog.Default().With(slog.String("job", TaskWorkOrderOverdue))
}

func (j *WorkOrderOverdueJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
