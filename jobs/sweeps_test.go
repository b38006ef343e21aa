package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	n   int64
	err error
	at  time.Time
}

func (f *fakeExpirer) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	f.at = now
	return f.n, f.err
}

type fakeSweeper struct {
	n   int64
	err error
}

func (f *fakeSweeper) SweepOverdue(ctx context.Context, now time.Time) (int64, error) {
	return f.n, f.err
}

func TestQuoteExpiryJob(t *testing.T) {
	expirer := &fakeExpirer{n: 3}
	job := NewQuoteExpiryJob(expirer, nil)
	fixed := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return fixed }

	task, err := NewQuoteExpiryTask()
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, fixed, expirer.at)

	expirer.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), task))
}

func TestQuoteExpiryJobUnconfigured(t *testing.T) {
	var job *QuoteExpiryJob
	task, err := NewQuoteExpiryTask()
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
}

func TestWorkOrderOverdueJob(t *testing.T) {
	job := NewWorkOrderOverdueJob(&fakeSweeper{n: 2}, nil)
	task, err := NewWorkOrderOverdueTask()
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	failing := NewWorkOrderOverdueJob(&fakeSweeper{err: errors.New("db down")}, nil)
	require.Error(t, failing.Handle(context.Background(), task))
}

func TestLowStockScanUnconfigured(t *testing.T) {
	job := NewLowStockScanJob(nil, nil, nil)
	require.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskLowStockScan, nil)))
}

func TestEnqueueLowStockScanWithoutClient(t *testing.T) {
	h := NewHandler(nil, nil, slog.Default())
	r := chi.NewRouter()
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/lowstock-scan", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/lowstock-scan?limit=-1", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEnqueueLowStockScanRejectsBadLimit(t *testing.T) {
	h := &Handler{client: &Client{}, logger: slog.Default()}
	r := chi.NewRouter()
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/lowstock-scan?limit=abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
