package quotes

import (
	"errors"
	"time"
)

// QuoteStatus enumerates the quote lifecycle.
type QuoteStatus string

const (
	StatusPending  QuoteStatus = "pending"
	StatusApproved QuoteStatus = "approved"
	StatusRejected QuoteStatus = "rejected"
)

// LineKind distinguishes part lines (derived totals) from service lines
// (manually priced).
type LineKind string

const (
	KindPart    LineKind = "part"
	KindService LineKind = "service"
)

// LineItem is a part or service entry on a quote.
type LineItem struct {
	ID          int64    `json:"id"`
	Kind        LineKind `json:"kind"`
	PartID      *int64   `json:"part_id,omitempty"`
	Description string   `json:"description"`
	Quantity    int64    `json:"quantity"`
	UnitPrice   float64  `json:"unit_price"`
	LineTotal   float64  `json:"line_total"`
}

// Quote is a proposed bundle of parts and services awaiting approval. Once
// WorkOrderID is set the quote is locked for conversion purposes.
type Quote struct {
	ID           int64       `json:"id"`
	ClientID     int64       `json:"client_id"`
	VehicleID    int64       `json:"vehicle_id"`
	Items        []LineItem  `json:"items"`
	TotalValue   float64     `json:"total_value"`
	Status       QuoteStatus `json:"status"`
	WorkOrderID  *int64      `json:"work_order_id,omitempty"`
	ValidUntil   time.Time   `json:"valid_until"`
	Observations string      `json:"observations,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Converted reports whether the quote has already produced a work order.
func (q Quote) Converted() bool {
	return q.WorkOrderID != nil
}

// RecomputeTotals derives part line totals and the aggregate total. Service
// lines keep their manually entered total.
func (q *Quote) RecomputeTotals() {
	var total float64
	for i := range q.Items {
		if q.Items[i].Kind == KindPart {
			q.Items[i].LineTotal = float64(q.Items[i].Quantity) * q.Items[i].UnitPrice
		}
		total += q.Items[i].LineTotal
	}
	q.TotalValue = total
}

var (
	// ErrQuoteNotFound indicates a missing quote.
	ErrQuoteNotFound = errors.New("quotes: quote not found")
	// ErrInvalidStatus indicates a forbidden status transition.
	ErrInvalidStatus = errors.New("quotes: invalid status transition")
	// ErrAwaitingConversion blocks deletion of an approved, unconverted quote.
	ErrAwaitingConversion = errors.New("quotes: approved quote awaiting conversion cannot be deleted")
	// ErrQuoteConverted blocks edits and deletion once a work order exists.
	ErrQuoteConverted = errors.New("quotes: quote already converted to a work order")
	// ErrEmptyItems requires at least one line item.
	ErrEmptyItems = errors.New("quotes: at least one line item is required")
)
