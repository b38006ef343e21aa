package quotes

import "time"

// LineItemRequest is one quote line in a create or update payload. Part lines
// need only part_id and quantity; service lines carry their own description
// and price.
type LineItemRequest struct {
	Kind        string  `json:"kind" validate:"required,oneof=part service"`
	PartID      *int64  `json:"part_id,omitempty" validate:"omitempty,gt=0"`
	Description string  `json:"description" validate:"max=200"`
	Quantity    int64   `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

// CreateQuoteRequest registers a new pending quote.
type CreateQuoteRequest struct {
	ClientID     int64             `json:"client_id" validate:"required,gt=0"`
	VehicleID    int64             `json:"vehicle_id" validate:"required,gt=0"`
	Items        []LineItemRequest `json:"items" validate:"required,min=1,dive"`
	ValidUntil   *time.Time        `json:"valid_until,omitempty"`
	Observations string            `json:"observations" validate:"max=500"`
}

// UpdateQuoteRequest replaces the items and header of a pending quote.
type UpdateQuoteRequest struct {
	Items        []LineItemRequest `json:"items" validate:"required,min=1,dive"`
	ValidUntil   *time.Time        `json:"valid_until,omitempty"`
	Observations string            `json:"observations" validate:"max=500"`
}

// QuoteResponse is the JSON shape of a quote with its lines.
type QuoteResponse struct {
	ID           int64      `json:"id"`
	ClientID     int64      `json:"client_id"`
	VehicleID    int64      `json:"vehicle_id"`
	Items        []LineItem `json:"items"`
	TotalValue   float64    `json:"total_value"`
	Status       string     `json:"status"`
	WorkOrderID  *int64     `json:"work_order_id,omitempty"`
	ValidUntil   time.Time  `json:"valid_until"`
	Observations string     `json:"observations,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toQuote(req CreateQuoteRequest) Quote {
	q := Quote{
		ClientID:     req.ClientID,
		VehicleID:    req.VehicleID,
		Items:        toItems(req.Items),
		Observations: req.Observations,
	}
	if req.ValidUntil != nil {
		q.ValidUntil = *req.ValidUntil
	}
	return q
}

func toItems(items []LineItemRequest) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		li := LineItem{
			Kind:        LineKind(item.Kind),
			PartID:      item.PartID,
			Description: item.Description,
			Quantity:    item.Quantity,
		}
		if li.Kind == KindService {
			li.UnitPrice = item.UnitPrice
			li.LineTotal = float64(item.Quantity) * item.UnitPrice
		}
		out = append(out, li)
	}
	return out
}

func toQuoteResponse(q Quote) QuoteResponse {
	return QuoteResponse{
		ID:           q.ID,
		ClientID:     q.ClientID,
		VehicleID:    q.VehicleID,
		Items:        q.Items,
		TotalValue:   q.TotalValue,
		Status:       string(q.Status),
		WorkOrderID:  q.WorkOrderID,
		ValidUntil:   q.ValidUntil,
		Observations: q.Observations,
		CreatedAt:    q.CreatedAt,
	}
}
