package parts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LowStockEvent signals that a part's on-hand quantity reached its reorder
// threshold after a reservation, release or adjustment. EventID lets
// consumers de-duplicate, since the inline signal and the periodic scan can
// both fire for the same part.
type LowStockEvent struct {
	EventID         string    `json:"event_id"`
	PartID          int64     `json:"part_id"`
	Code            string    `json:"code"`
	Description     string    `json:"description"`
	QuantityOnHand  int64     `json:"quantity_on_hand"`
	MinimumQuantity int64     `json:"minimum_quantity"`
	At              time.Time `json:"at"`
}

// NewLowStockEvent snapshots the part counters into a signal.
func NewLowStockEvent(p Part) LowStockEvent {
	return LowStockEvent{
		EventID:         uuid.NewString(),
		PartID:          p.ID,
		Code:            p.Code,
		Description:     p.Description,
		QuantityOnHand:  p.QuantityOnHand,
		MinimumQuantity: p.MinimumQuantity,
		At:              time.Now().UTC(),
	}
}

// LowStockPublisher forwards low-stock signals to notification and dashboard
// consumers.
type LowStockPublisher interface {
	PublishLowStock(ctx context.Context, evt LowStockEvent) error
}
