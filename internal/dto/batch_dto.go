package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type StartBatchRequest struct {
	BeanVarietyID string           `json:"bean_variety_id" validate:"required,uuid"`
	InitialWeight int              `json:"initial_weight"` // grams
	BatchNumber   *int             `json:"batch_number"   validate:"omitempty,min=1"`
	Density       *decimal.Decimal `json:"density"`
	TargetProfile *string          `json:"target_profile" validate:"omitempty,max=200"`
}

// FinishBatchRequest comes as multipart form fields when a result photo is
// attached, JSON otherwise.
type FinishBatchRequest struct {
	FinalTime      string  `json:"final_time"       form:"final_time" validate:"required,max=16"` // elapsed, "MM:SS"
	FinalTemp      int     `json:"final_temp"       form:"final_temp" validate:"required"`
	ResultPhotoURL *string `json:"result_photo_url" form:"-"          validate:"omitempty,url"`
}

type LogEntryRequest struct {
	TimeIndex    *int     `json:"time_index"     validate:"required"`
	Temperature  *float64 `json:"temperature"    validate:"required"`
	Airflow      int      `json:"airflow"`
	IsFirstCrack bool     `json:"is_first_crack"`
}

type QCRequest struct {
	CuppingScore *int   `json:"cupping_score" validate:"required"`
	SensoryNotes string `json:"sensory_notes" validate:"max=2000"`
	IsApproved   *bool  `json:"is_approved"   validate:"required"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type VarietyRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RoasterRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// BatchResult is only present once the batch is finished.
type BatchResult struct {
	ActualYield    int     `json:"actual_yield"`
	FinalTime      string  `json:"final_time"`
	FinalTemp      int     `json:"final_temp"`
	ResultPhotoURL *string `json:"result_photo_url"`
}

type QCResponse struct {
	CuppingScore *int    `json:"cupping_score"`
	SensoryNotes *string `json:"sensory_notes"`
	IsApproved   *bool   `json:"is_approved"`
}

type BatchResponse struct {
	ID             string           `json:"id"`
	BatchNumber    int              `json:"batch_number"`
	BeanVarietyID  string           `json:"bean_variety_id"`
	BeanVariety    *VarietyRef      `json:"bean_variety,omitempty"`
	RoasterID      string           `json:"roaster_id"`
	Roaster        *RoasterRef      `json:"roaster,omitempty"`
	InitialWeight  int              `json:"initial_weight"`
	EstimatedYield int              `json:"estimated_yield"`
	Density        *decimal.Decimal `json:"density"`
	TargetProfile  *string          `json:"target_profile"`
	State          string           `json:"state"`
	Result         *BatchResult     `json:"result"`
	QC             QCResponse       `json:"qc"`
	FirstCrack     *LogResponse     `json:"first_crack,omitempty"`
	Logs           []LogResponse    `json:"logs,omitempty"`
	CreatedAt      string           `json:"created_at"`
}

type LogResponse struct {
	ID           string  `json:"id"`
	TimeIndex    int     `json:"time_index"`
	Temperature  float64 `json:"temperature"`
	Airflow      int     `json:"airflow"`
	IsFirstCrack bool    `json:"is_first_crack"`
	CreatedAt    string  `json:"created_at"`
}

type TelemetryResponse struct {
	BatchID    string        `json:"batch_id"`
	Logs       []LogResponse `json:"logs"`
	FirstCrack *LogResponse  `json:"first_crack"`
}
