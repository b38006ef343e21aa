package workorders

import (
	"errors"
	"fmt"
	"time"
)

// Status enumerates the work order lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Open reports whether the work order still holds part reservations.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusInProgress
}

// PaymentStatus tracks settlement separately from execution.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
)

// PartLine is a reserved part on a work order. Quantity and price are a
// snapshot taken at reservation time.
type PartLine struct {
	ID          int64   `json:"id"`
	PartID      int64   `json:"part_id"`
	Description string  `json:"description"`
	Quantity    int64   `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
}

// ServiceLine is a labour entry priced at authoring time.
type ServiceLine struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// WorkOrder is an authorised job. While it is open its part lines hold
// reservations in the ledger; completion consumes them, cancellation releases
// them.
type WorkOrder struct {
	ID            int64         `json:"id"`
	ClientID      int64         `json:"client_id"`
	VehicleID     int64         `json:"vehicle_id"`
	QuoteID       *int64        `json:"quote_id,omitempty"`
	Services      []ServiceLine `json:"services"`
	Parts         []PartLine    `json:"parts"`
	TotalValue    float64       `json:"total_value"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	EntryDate     time.Time     `json:"entry_date"`
	DueDate       time.Time     `json:"due_date"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Observations  string        `json:"observations,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// RecomputeTotal sums part line totals and service prices.
func (w *WorkOrder) RecomputeTotal() {
	var total float64
	for i := range w.Parts {
		w.Parts[i].LineTotal = float64(w.Parts[i].Quantity) * w.Parts[i].UnitPrice
		total += w.Parts[i].LineTotal
	}
	for _, svc := range w.Services {
		total += svc.Price
	}
	w.TotalValue = total
}

var (
	// ErrWorkOrderNotFound indicates a missing work order.
	ErrWorkOrderNotFound = errors.New("workorders: work order not found")
	// ErrAlreadyConverted rejects a second conversion of the same quote.
	ErrAlreadyConverted = errors.New("workorders: quote already converted")
	// ErrQuoteNotApproved rejects conversion of a quote that is not approved.
	ErrQuoteNotApproved = errors.New("workorders: quote is not approved")
	// ErrEmptyOrder requires at least one part or service line.
	ErrEmptyOrder = errors.New("workorders: at least one part or service line is required")
)

// AlreadyConvertedError reports that a quote was converted before, carrying
// the work order that conversion produced so callers can answer
// idempotently. errors.Is matches it against ErrAlreadyConverted.
type AlreadyConvertedError struct {
	WorkOrderID int64
}

func (e *AlreadyConvertedError) Error() string {
	return fmt.Sprintf("workorders: quote already converted into work order %d", e.WorkOrderID)
}

func (e *AlreadyConvertedError) Is(target error) bool {
	return target == ErrAlreadyConverted
}

// InvalidTransitionError reports a forbidden lifecycle move.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("workorders: cannot move from %s to %s", e.From, e.To)
}

// InvalidPaymentError reports a forbidden payment move.
type InvalidPaymentError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *InvalidPaymentError) Error() string {
	return fmt.Sprintf("workorders: cannot move payment from %s to %s", e.From, e.To)
}
