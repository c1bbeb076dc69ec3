package service

import (
	"time"

	"roastkit/internal/dto"
	"roastkit/internal/model"
)

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func varietyToResponse(v *model.BeanVariety) *dto.VarietyResponse {
	resp := &dto.VarietyResponse{
		ID:           v.ID.String(),
		Name:         v.Name,
		StockGreen:   v.StockGreen,
		StockRoasted: v.StockRoasted,
		SackPhotoURL: v.SackPhotoURL,
		CreatedAt:    formatTime(v.CreatedAt),
		UpdatedAt:    formatTime(v.UpdatedAt),
	}
	for i := range v.Batches {
		resp.Batches = append(resp.Batches, *batchToResponse(&v.Batches[i]))
	}
	return resp
}

func movementToResponse(m *model.StockMovement) dto.MovementResponse {
	resp := dto.MovementResponse{
		ID:           m.ID.String(),
		Counter:      string(m.Counter),
		Kind:         string(m.Kind),
		Delta:        m.Delta,
		BalanceAfter: m.BalanceAfter,
		CreatedAt:    formatTime(m.CreatedAt),
	}
	if m.BatchID != nil {
		id := m.BatchID.String()
		resp.BatchID = &id
	}
	return resp
}

func logToResponse(l *model.RoastLog) dto.LogResponse {
	return dto.LogResponse{
		ID:           l.ID.String(),
		TimeIndex:    l.TimeIndex,
		Temperature:  l.Temperature,
		Airflow:      l.Airflow,
		IsFirstCrack: l.IsFirstCrack,
		CreatedAt:    formatTime(l.CreatedAt),
	}
}

func batchToResponse(b *model.RoastBatch) *dto.BatchResponse {
	resp := &dto.BatchResponse{
		ID:             b.ID.String(),
		BatchNumber:    b.BatchNumber,
		BeanVarietyID:  b.BeanVarietyID.String(),
		RoasterID:      b.RoasterID.String(),
		InitialWeight:  b.InitialWeight,
		EstimatedYield: b.EstimatedYield,
		Density:        b.Density,
		TargetProfile:  b.TargetProfile,
		State:          string(b.Status),
		QC: dto.QCResponse{
			CuppingScore: b.CuppingScore,
			SensoryNotes: b.SensoryNotes,
			IsApproved:   b.IsApproved,
		},
		CreatedAt: formatTime(b.CreatedAt),
	}
	if b.BeanVariety != nil {
		resp.BeanVariety = &dto.VarietyRef{ID: b.BeanVariety.ID.String(), Name: b.BeanVariety.Name}
	}
	if b.Roaster != nil {
		resp.Roaster = &dto.RoasterRef{ID: b.Roaster.ID.String(), Username: b.Roaster.Username, FullName: b.Roaster.FullName}
	}
	if b.IsFinished() && b.FinalTime != nil && b.ActualYield != nil {
		resp.Result = &dto.BatchResult{
			ActualYield:    *b.ActualYield,
			FinalTime:      *b.FinalTime,
			ResultPhotoURL: b.ResultPhotoURL,
		}
		if b.FinalTemp != nil {
			resp.Result.FinalTemp = *b.FinalTemp
		}
	}
	for i := range b.Logs {
		resp.Logs = append(resp.Logs, logToResponse(&b.Logs[i]))
	}
	if fc := b.FirstCrack(); fc != nil {
		r := logToResponse(fc)
		resp.FirstCrack = &r
	}
	return resp
}

func userToResponse(u *model.User) dto.UserResponse {
	return dto.UserResponse{ID: u.ID.String(), Username: u.Username, FullName: u.FullName, Role: u.Role}
}
