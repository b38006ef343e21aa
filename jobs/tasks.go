package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan sweeps the part ledger for items at or below their
	// reorder threshold.
	TaskLowStockScan = "lowstock:scan"
	// TaskQuoteExpiry rejects pending quotes past their validity date.
	TaskQuoteExpiry = "quotes:expire"
	// TaskWorkOrderOverdue flips payment to overdue on lapsed work orders.
	TaskWorkOrderOverdue = "workorders:overdue"
)

// LowStockScanPayload bounds a single scan run.
type LowStockScanPayload struct {
	Limit int `json:"limit"`
}

// NewLowStockScanTask constructs the scan task.
func NewLowStockScanTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(LowStockScanPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// NewQuoteExpiryTask constructs the quote expiry task.
func NewQuoteExpiryTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskQuoteExpiry, nil), nil
}

// NewWorkOrderOverdueTask constructs the overdue sweep task.
func NewWorkOrderOverdueTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskWorkOrderOverdue, nil), nil
}
