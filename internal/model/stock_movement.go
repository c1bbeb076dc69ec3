package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockCounter names one of the two stock counters of a variety.
type StockCounter string

const (
	CounterGreen   StockCounter = "green"
	CounterRoasted StockCounter = "roasted"
)

// MovementKind explains why a counter changed.
type MovementKind string

const (
	MovementRestock    MovementKind = "restock"
	MovementRoastDebit MovementKind = "roast_debit"
	MovementRoastYield MovementKind = "roast_yield"
)

// StockMovement records every change applied to a variety's stock.
// It is written in the same transaction as the change it describes.
type StockMovement struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey"`
	BeanVarietyID uuid.UUID    `gorm:"type:uuid;not null;index"`
	Counter       StockCounter `gorm:"type:varchar(10);not null"`
	Kind          MovementKind `gorm:"type:varchar(20);not null"`
	Delta         int          `gorm:"not null"` // positive = credit, negative = debit
	BalanceAfter  int          `gorm:"not null"`
	BatchID       *uuid.UUID   `gorm:"type:uuid;index"`
	CreatedAt     time.Time
}

func (m *StockMovement) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
