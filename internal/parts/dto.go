package parts

// CreatePartRequest registers a new stockable item.
type CreatePartRequest struct {
	Code            string  `json:"code" validate:"required,max=40"`
	Description     string  `json:"description" validate:"required,max=200"`
	QuantityOnHand  int64   `json:"quantity_on_hand" validate:"gte=0"`
	MinimumQuantity int64   `json:"minimum_quantity" validate:"gte=0"`
	PurchasePrice   float64 `json:"purchase_price" validate:"gte=0"`
	SalePrice       float64 `json:"sale_price" validate:"gte=0"`
	Supplier        string  `json:"supplier" validate:"max=120"`
}

// UpdatePartRequest changes descriptive fields of a part.
type UpdatePartRequest struct {
	Code            string  `json:"code" validate:"required,max=40"`
	Description     string  `json:"description" validate:"required,max=200"`
	MinimumQuantity int64   `json:"minimum_quantity" validate:"gte=0"`
	PurchasePrice   float64 `json:"purchase_price" validate:"gte=0"`
	SalePrice       float64 `json:"sale_price" validate:"gte=0"`
	Supplier        string  `json:"supplier" validate:"max=120"`
}

// AdjustStockRequest applies an on-hand delta from an external inventory
// movement.
type AdjustStockRequest struct {
	Delta int64 `json:"delta" validate:"required"`
}

// PartResponse is the JSON shape of a ledger entry.
type PartResponse struct {
	ID                int64   `json:"id"`
	Code              string  `json:"code"`
	Description       string  `json:"description"`
	QuantityOnHand    int64   `json:"quantity_on_hand"`
	QuantityReserved  int64   `json:"quantity_reserved"`
	QuantityAvailable int64   `json:"quantity_available"`
	MinimumQuantity   int64   `json:"minimum_quantity"`
	PurchasePrice     float64 `json:"purchase_price"`
	SalePrice         float64 `json:"sale_price"`
	Supplier          string  `json:"supplier"`
}

func toPartResponse(p Part) PartResponse {
	return PartResponse{
		ID:                p.ID,
		Code:              p.Code,
		Description:       p.Description,
		QuantityOnHand:    p.QuantityOnHand,
		QuantityReserved:  p.QuantityReserved,
		QuantityAvailable: p.Available(),
		MinimumQuantity:   p.MinimumQuantity,
		PurchasePrice:     p.PurchasePrice,
		SalePrice:         p.SalePrice,
		Supplier:          p.Supplier,
	}
}
