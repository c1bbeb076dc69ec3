package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BeanVariety is one green coffee origin with its two stock counters, in grams.
// Neither counter may ever go below zero; the repository enforces this with
// conditional updates rather than read-modify-write.
type BeanVariety struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"index;not null"`
	StockGreen   int       `gorm:"not null;default:0;check:chk_bean_varieties_stock_green,stock_green >= 0"`
	StockRoasted int       `gorm:"not null;default:0;check:chk_bean_varieties_stock_roasted,stock_roasted >= 0"`
	SackPhotoURL *string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Batches []RoastBatch `gorm:"foreignKey:BeanVarietyID"`
}

func (b *BeanVariety) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
