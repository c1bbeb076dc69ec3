package dto

// ─── Request DTOs ────────────────────────────────────────────────────────────

// CreateVarietyRequest is accepted as JSON or as multipart form fields
// (the latter when a sack photo is attached).
type CreateVarietyRequest struct {
	Name         string `json:"name"          form:"name"          validate:"required,min=1,max=120"`
	StockGreen   int    `json:"stock_green"   form:"stock_green"`
	StockRoasted int    `json:"stock_roasted" form:"stock_roasted"`
}

type UpdateVarietyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=120"`
}

// RestockRequest credits one counter. Type accepts green|roasted and the
// short forms GB|RB; empty means green.
type RestockRequest struct {
	Amount int    `json:"amount" form:"amount"`
	Type   string `json:"type"   form:"type" validate:"omitempty,oneof=green roasted GB RB"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type VarietyResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	StockGreen   int             `json:"stock_green"`
	StockRoasted int             `json:"stock_roasted"`
	SackPhotoURL *string         `json:"sack_photo_url"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	Batches      []BatchResponse `json:"batches,omitempty"`
}

type MovementResponse struct {
	ID           string  `json:"id"`
	Counter      string  `json:"counter"`
	Kind         string  `json:"kind"`
	Delta        int     `json:"delta"`
	BalanceAfter int     `json:"balance_after"`
	BatchID      *string `json:"batch_id"`
	CreatedAt    string  `json:"created_at"`
}
