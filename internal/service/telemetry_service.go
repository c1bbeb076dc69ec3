package service

import (
	"context"
	"math"

	"roastkit/internal/dto"
	"roastkit/internal/model"
	"roastkit/internal/repository"

	"github.com/google/uuid"
)

// TelemetryService appends and reads the sensor samples of a roast.
// Samples are immutable; they only disappear with their batch.
type TelemetryService interface {
	Append(ctx context.Context, batchID uuid.UUID, req dto.LogEntryRequest) (*dto.LogResponse, error)
	List(ctx context.Context, batchID uuid.UUID) (*dto.TelemetryResponse, error)
}

type telemetryService struct {
	logs    repository.RoastLogRepository
	batches repository.BatchRepository
}

func NewTelemetryService(logs repository.RoastLogRepository, batches repository.BatchRepository) TelemetryService {
	return &telemetryService{logs: logs, batches: batches}
}

// Append accepts samples in any time order and any number of first-crack
// marks, before or after the batch is finished.
func (s *telemetryService) Append(ctx context.Context, batchID uuid.UUID, req dto.LogEntryRequest) (*dto.LogResponse, error) {
	if req.TimeIndex == nil || *req.TimeIndex < 0 {
		return nil, ErrInvalidReading
	}
	if req.Temperature == nil || math.IsNaN(*req.Temperature) || math.IsInf(*req.Temperature, 0) {
		return nil, ErrInvalidReading
	}
	if req.Airflow < 0 || req.Airflow > 100 {
		return nil, ErrInvalidReading
	}

	if _, err := s.batches.FindByIDTx(s.batches.DB().WithContext(ctx), batchID); err != nil {
		return nil, translateNotFound(err, "roast batch")
	}

	l := &model.RoastLog{
		BatchID:      batchID,
		TimeIndex:    *req.TimeIndex,
		Temperature:  *req.Temperature,
		Airflow:      req.Airflow,
		IsFirstCrack: req.IsFirstCrack,
	}
	if err := s.logs.Create(ctx, l); err != nil {
		return nil, err
	}
	resp := logToResponse(l)
	return &resp, nil
}

func (s *telemetryService) List(ctx context.Context, batchID uuid.UUID) (*dto.TelemetryResponse, error) {
	if _, err := s.batches.FindByIDTx(s.batches.DB().WithContext(ctx), batchID); err != nil {
		return nil, translateNotFound(err, "roast batch")
	}
	logs, err := s.logs.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	resp := &dto.TelemetryResponse{BatchID: batchID.String(), Logs: make([]dto.LogResponse, len(logs))}
	for i := range logs {
		resp.Logs[i] = logToResponse(&logs[i])
	}
	if fc := FirstCrack(logs); fc != nil {
		r := logToResponse(fc)
		resp.FirstCrack = &r
	}
	return resp, nil
}

// FirstCrack returns the earliest flagged sample of an ordered series, or nil.
func FirstCrack(logs []model.RoastLog) *model.RoastLog {
	b := model.RoastBatch{Logs: logs}
	return b.FirstCrack()
}
