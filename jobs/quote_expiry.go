package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// QuoteExpirer rejects pending quotes whose validity lapsed before the given
// time and reports how many it touched.
type QuoteExpirer interface {
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

// QuoteExpiryJob runs the quote expiry sweep.
type QuoteExpiryJob struct {
	Expirer QuoteExpirer
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewQuoteExpiryJob initialises the expiry handler.
func NewQuoteExpiryJob(expirer QuoteExpirer, logger *slog.Logger) *QuoteExpiryJob {
	return &QuoteExpiryJob{
		Expirer: expirer,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one expiry sweep.
func (j *QuoteExpiryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Expirer == nil {
		return errors.New("quote expiry: handler not configured")
	}
	start := j.now()
	logger := j.logger()

	n, err := j.Expirer.ExpirePending(ctx, start)
	if err != nil {
		logger.Error("expiry sweep failed", slog.Any("error", err))
		return err
	}
	logger.Info("completed quote expiry sweep",
		slog.Int64("expired", n),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *QuoteExpiryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskQuoteExpiry))
	}
	return slog.Default().With(slog.String("job", TaskQuoteExpiry))
}

func (j *QuoteExpiryJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
