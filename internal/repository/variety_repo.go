package repository

import (
	"context"
	"fmt"

	"roastkit/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VarietyRepository defines the data access contract for bean varieties.
// Services depend on this interface, not on the concrete GORM implementation.
type VarietyRepository interface {
	Create(ctx context.Context, v *model.BeanVariety) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.BeanVariety, error)
	FindByIDWithBatches(ctx context.Context, id uuid.UUID) (*model.BeanVariety, error)
	List(ctx context.Context) ([]model.BeanVariety, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) (int64, error)
	SetSackPhoto(ctx context.Context, id uuid.UUID, url string) error
	ListLowStock(ctx context.Context, threshold int) ([]model.BeanVariety, error)

	// Used inside transactions; callers must pass the tx instance
	CreateTx(tx *gorm.DB, v *model.BeanVariety) error
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.BeanVariety, error)
	// DebitGreenTx subtracts amount only if enough green stock is left.
	// Zero rows affected means the variety is missing or short.
	DebitGreenTx(tx *gorm.DB, id uuid.UUID, amount int) (int64, error)
	CreditTx(tx *gorm.DB, id uuid.UUID, counter model.StockCounter, amount int) (int64, error)
	// DeleteCascadeTx removes the variety with its batches, their logs and the
	// variety's stock movements. Returns rows affected on the variety itself.
	DeleteCascadeTx(tx *gorm.DB, id uuid.UUID) (int64, error)

	// DB exposes the underlying *gorm.DB so services can open transactions.
	DB() *gorm.DB
}

type varietyRepo struct{ db *gorm.DB }

func NewVarietyRepository(db *gorm.DB) VarietyRepository { return &varietyRepo{db: db} }

func (r *varietyRepo) Create(ctx context.Context, v *model.BeanVariety) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *varietyRepo) CreateTx(tx *gorm.DB, v *model.BeanVariety) error {
	return tx.Create(v).Error
}

func (r *varietyRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.BeanVariety, error) {
	var v model.BeanVariety
	err := r.db.WithContext(ctx).First(&v, "id = ?", id).Error
	return &v, err
}

func (r *varietyRepo) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.BeanVariety, error) {
	var v model.BeanVariety
	err := tx.First(&v, "id = ?", id).Error
	return &v, err
}

func (r *varietyRepo) FindByIDWithBatches(ctx context.Context, id uuid.UUID) (*model.BeanVariety, error) {
	var v model.BeanVariety
	err := r.db.WithContext(ctx).
		Preload("Batches", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Preload("Batches.Roaster").
		First(&v, "id = ?", id).Error
	return &v, err
}

func (r *varietyRepo) List(ctx context.Context) ([]model.BeanVariety, error) {
	var varieties []model.BeanVariety
	err := r.db.WithContext(ctx).Order("name ASC").Find(&varieties).Error
	return varieties, err
}

func (r *varietyRepo) UpdateName(ctx context.Context, id uuid.UUID, name string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.BeanVariety{}).Where("id = ?", id).Update("name", name)
	return res.RowsAffected, res.Error
}

func (r *varietyRepo) SetSackPhoto(ctx context.Context, id uuid.UUID, url string) error {
	return r.db.WithContext(ctx).Model(&model.BeanVariety{}).Where("id = ?", id).Update("sack_photo_url", url).Error
}

func (r *varietyRepo) ListLowStock(ctx context.Context, threshold int) ([]model.BeanVariety, error) {
	var varieties []model.BeanVariety
	err := r.db.WithContext(ctx).Where("stock_green < ?", threshold).Order("stock_green ASC").Find(&varieties).Error
	return varieties, err
}

func (r *varietyRepo) DebitGreenTx(tx *gorm.DB, id uuid.UUID, amount int) (int64, error) {
	res := tx.Model(&model.BeanVariety{}).
		Where("id = ? AND stock_green >= ?", id, amount).
		Update("stock_green", gorm.Expr("stock_green - ?", amount))
	return res.RowsAffected, res.Error
}

func (r *varietyRepo) CreditTx(tx *gorm.DB, id uuid.UUID, counter model.StockCounter, amount int) (int64, error) {
	col, err := stockColumn(counter)
	if err != nil {
		return 0, err
	}
	res := tx.Model(&model.BeanVariety{}).Where("id = ?", id).
		Update(col, gorm.Expr(col+" + ?", amount))
	return res.RowsAffected, res.Error
}

func (r *varietyRepo) DeleteCascadeTx(tx *gorm.DB, id uuid.UUID) (int64, error) {
	batchIDs := tx.Model(&model.RoastBatch{}).Select("id").Where("bean_variety_id = ?", id)
	if err := tx.Where("batch_id IN (?)", batchIDs).Delete(&model.RoastLog{}).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("bean_variety_id = ?", id).Delete(&model.StockMovement{}).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("bean_variety_id = ?", id).Delete(&model.RoastBatch{}).Error; err != nil {
		return 0, err
	}
	res := tx.Where("id = ?", id).Delete(&model.BeanVariety{})
	return res.RowsAffected, res.Error
}

func (r *varietyRepo) DB() *gorm.DB { return r.db }

func stockColumn(c model.StockCounter) (string, error) {
	switch c {
	case model.CounterGreen:
		return "stock_green", nil
	case model.CounterRoasted:
		return "stock_roasted", nil
	}
	return "", fmt.Errorf("unknown stock counter %q", c)
}
