package repository

import (
	"context"

	"roastkit/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RoastLogRepository interface {
	Create(ctx context.Context, l *model.RoastLog) error
	// ListByBatch returns the batch's samples by ascending time index;
	// samples sharing an index keep insertion order.
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]model.RoastLog, error)
}

type roastLogRepo struct{ db *gorm.DB }

func NewRoastLogRepository(db *gorm.DB) RoastLogRepository { return &roastLogRepo{db: db} }

func (r *roastLogRepo) Create(ctx context.Context, l *model.RoastLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *roastLogRepo) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]model.RoastLog, error) {
	var logs []model.RoastLog
	err := orderedLogs(r.db.WithContext(ctx)).Where("batch_id = ?", batchID).Find(&logs).Error
	return logs, err
}
