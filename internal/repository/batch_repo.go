package repository

import (
	"context"
	"time"

	"roastkit/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FinishColumns are written together with the finished status.
type FinishColumns struct {
	ActualYield    int
	FinalTime      string
	FinalTemp      int
	ResultPhotoURL *string
}

// QCColumns holds a cupping evaluation.
type QCColumns struct {
	CuppingScore int
	SensoryNotes string
	IsApproved   bool
}

type BatchRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.RoastBatch, error)
	List(ctx context.Context) ([]model.RoastBatch, error)
	FindActiveByRoaster(ctx context.Context, roasterID uuid.UUID) (*model.RoastBatch, error)
	UpdateQC(ctx context.Context, id uuid.UUID, qc QCColumns) (int64, error)
	ListStale(ctx context.Context, startedBefore time.Time) ([]model.RoastBatch, error)

	CreateTx(tx *gorm.DB, b *model.RoastBatch) error
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.RoastBatch, error)
	FindActiveByRoasterTx(tx *gorm.DB, roasterID uuid.UUID) (*model.RoastBatch, error)
	// FinishTx only touches a batch that is still in progress, so a batch can
	// be finished once. Zero rows affected means it was not.
	FinishTx(tx *gorm.DB, id uuid.UUID, cols FinishColumns) (int64, error)
	// NextBatchNumberTx returns one past the highest batch number the roaster
	// used since dayStart.
	NextBatchNumberTx(tx *gorm.DB, roasterID uuid.UUID, dayStart time.Time) (int, error)

	DB() *gorm.DB
}

type batchRepo struct{ db *gorm.DB }

func NewBatchRepository(db *gorm.DB) BatchRepository { return &batchRepo{db: db} }

func orderedLogs(db *gorm.DB) *gorm.DB {
	return db.Order("time_index ASC").Order("created_at ASC")
}

func (r *batchRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.RoastBatch, error) {
	var b model.RoastBatch
	err := r.db.WithContext(ctx).
		Preload("BeanVariety").
		Preload("Roaster").
		Preload("Logs", orderedLogs).
		First(&b, "id = ?", id).Error
	return &b, err
}

func (r *batchRepo) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.RoastBatch, error) {
	var b model.RoastBatch
	err := tx.First(&b, "id = ?", id).Error
	return &b, err
}

func (r *batchRepo) List(ctx context.Context) ([]model.RoastBatch, error) {
	var batches []model.RoastBatch
	err := r.db.WithContext(ctx).
		Preload("BeanVariety").
		Preload("Roaster").
		Order("created_at DESC").
		Find(&batches).Error
	return batches, err
}

func (r *batchRepo) FindActiveByRoaster(ctx context.Context, roasterID uuid.UUID) (*model.RoastBatch, error) {
	var b model.RoastBatch
	err := r.db.WithContext(ctx).
		Preload("BeanVariety").
		Preload("Logs", orderedLogs).
		Where("roaster_id = ? AND status = ?", roasterID, model.BatchInProgress).
		Order("created_at DESC").
		First(&b).Error
	return &b, err
}

func (r *batchRepo) FindActiveByRoasterTx(tx *gorm.DB, roasterID uuid.UUID) (*model.RoastBatch, error) {
	var b model.RoastBatch
	err := tx.Where("roaster_id = ? AND status = ?", roasterID, model.BatchInProgress).
		Order("created_at DESC").
		First(&b).Error
	return &b, err
}

func (r *batchRepo) CreateTx(tx *gorm.DB, b *model.RoastBatch) error {
	return tx.Omit("BeanVariety", "Roaster", "Logs").Create(b).Error
}

func (r *batchRepo) FinishTx(tx *gorm.DB, id uuid.UUID, cols FinishColumns) (int64, error) {
	res := tx.Model(&model.RoastBatch{}).
		Where("id = ? AND status = ?", id, model.BatchInProgress).
		Updates(map[string]interface{}{
			"status":           model.BatchFinished,
			"actual_yield":     cols.ActualYield,
			"final_time":       cols.FinalTime,
			"final_temp":       cols.FinalTemp,
			"result_photo_url": cols.ResultPhotoURL,
		})
	return res.RowsAffected, res.Error
}

func (r *batchRepo) UpdateQC(ctx context.Context, id uuid.UUID, qc QCColumns) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.RoastBatch{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"cupping_score": qc.CuppingScore,
			"sensory_notes": qc.SensoryNotes,
			"is_approved":   qc.IsApproved,
		})
	return res.RowsAffected, res.Error
}

func (r *batchRepo) ListStale(ctx context.Context, startedBefore time.Time) ([]model.RoastBatch, error) {
	var batches []model.RoastBatch
	err := r.db.WithContext(ctx).
		Preload("BeanVariety").
		Preload("Roaster").
		Where("status = ? AND created_at < ?", model.BatchInProgress, startedBefore).
		Order("created_at ASC").
		Find(&batches).Error
	return batches, err
}

func (r *batchRepo) NextBatchNumberTx(tx *gorm.DB, roasterID uuid.UUID, dayStart time.Time) (int, error) {
	var highest int
	err := tx.Model(&model.RoastBatch{}).
		Select("COALESCE(MAX(batch_number), 0)").
		Where("roaster_id = ? AND created_at >= ?", roasterID, dayStart).
		Scan(&highest).Error
	return highest + 1, err
}

func (r *batchRepo) DB() *gorm.DB { return r.db }
