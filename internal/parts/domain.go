package parts

import (
	"errors"
	"fmt"
	"time"
)

// Part identifies a stockable item in the workshop ledger. The ledger is the
// sole owner of the reservation counter; quotes and work orders only record
// the quantities they request or hold.
type Part struct {
	ID               int64
	Code             string
	Description      string
	QuantityOnHand   int64
	QuantityReserved int64
	MinimumQuantity  int64
	PurchasePrice    float64
	SalePrice        float64
	Supplier         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Available returns on-hand quantity minus reserved quantity. It can read
// negative transiently after an on-hand adjustment; reservations always
// validate against it before incrementing the hold.
func (p Part) Available() int64 {
	return p.QuantityOnHand - p.QuantityReserved
}

// LowStock reports whether on-hand stock dropped to the reorder threshold.
func (p Part) LowStock() bool {
	return p.QuantityOnHand <= p.MinimumQuantity
}

// ErrPartNotFound indicates a missing ledger entry.
var ErrPartNotFound = errors.New("parts: part not found")

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("parts: quantity must be positive")

// ErrNegativeStock triggered when an adjustment would drop on-hand below zero.
var ErrNegativeStock = errors.New("parts: negative stock not allowed")

// ErrPartReserved blocks deletion while reservations are held.
var ErrPartReserved = errors.New("parts: part has active reservations")

// ErrPartReferenced blocks deletion while open quotes or work orders reference the part.
var ErrPartReferenced = errors.New("parts: part referenced by open documents")

// InsufficientStockError reports a reservation rejected for lack of available stock.
type InsufficientStockError struct {
	Description string
	Available   int64
	Requested   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("parts: insufficient stock for %q: available %d, requested %d", e.Description, e.Available, e.Requested)
}
