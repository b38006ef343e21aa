package workorders

import "time"

// PartLineRequest reserves one part on a directly created work order. Price
// and description come from the ledger.
type PartLineRequest struct {
	PartID   int64 `json:"part_id" validate:"required,gt=0"`
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

// ServiceLineRequest adds a labour entry.
type ServiceLineRequest struct {
	Description string  `json:"description" validate:"required,max=200"`
	Price       float64 `json:"price" validate:"gte=0"`
}

// CreateWorkOrderRequest registers a work order without a quote.
type CreateWorkOrderRequest struct {
	ClientID     int64                `json:"client_id" validate:"required,gt=0"`
	VehicleID    int64                `json:"vehicle_id" validate:"required,gt=0"`
	Parts        []PartLineRequest    `json:"parts" validate:"dive"`
	Services     []ServiceLineRequest `json:"services" validate:"dive"`
	Observations string               `json:"observations" validate:"max=500"`
}

// CancelWorkOrderRequest optionally explains a cancellation.
type CancelWorkOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// WorkOrderResponse is the JSON shape of a work order.
type WorkOrderResponse struct {
	ID            int64         `json:"id"`
	ClientID      int64         `json:"client_id"`
	VehicleID     int64         `json:"vehicle_id"`
	QuoteID       *int64        `json:"quote_id,omitempty"`
	Services      []ServiceLine `json:"services"`
	Parts         []PartLine    `json:"parts"`
	TotalValue    float64       `json:"total_value"`
	Status        string        `json:"status"`
	PaymentStatus string        `json:"payment_status"`
	EntryDate     time.Time     `json:"entry_date"`
	DueDate       time.Time     `json:"due_date"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Observations  string        `json:"observations,omitempty"`
}

func toWorkOrder(req CreateWorkOrderRequest) WorkOrder {
	wo := WorkOrder{
		ClientID:     req.ClientID,
		VehicleID:    req.VehicleID,
		Observations: req.Observations,
	}
	for _, line := range req.Parts {
		wo.Parts = append(wo.Parts, PartLine{PartID: line.PartID, Quantity: line.Quantity})
	}
	for _, line := range req.Services {
		wo.Services = append(wo.Services, ServiceLine{Description: line.Description, Price: line.Price})
	}
	return wo
}

func toWorkOrderResponse(wo WorkOrder) WorkOrderResponse {
	return WorkOrderResponse{
		ID:            wo.ID,
		ClientID:      wo.ClientID,
		VehicleID:     wo.VehicleID,
		QuoteID:       wo.QuoteID,
		Services:      wo.Services,
		Parts:         wo.Parts,
		TotalValue:    wo.TotalValue,
		Status:        string(wo.Status),
		PaymentStatus: string(wo.PaymentStatus),
		EntryDate:     wo.EntryDate,
		DueDate:       wo.DueDate,
		CompletedAt:   wo.CompletedAt,
		Observations:  wo.Observations,
	}
}
