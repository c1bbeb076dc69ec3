package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BatchState is the persisted lifecycle state of a roast batch.
type BatchState string

const (
	// BatchInProgress covers both "created" and "roasting": the green beans are
	// already debited and telemetry may be appended.
	BatchInProgress BatchState = "in_progress"
	// BatchFinished is terminal; the finish columns are set and the yield has
	// been credited to roasted stock.
	BatchFinished BatchState = "finished"
)

// RoastBatch is one roast run of a bean variety by one roaster.
// ActualYield, FinalTime, FinalTemp and ResultPhotoURL are only written by the
// finish transition, in the same UPDATE that flips Status to finished.
type RoastBatch struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey"`
	BatchNumber    int              `gorm:"not null"`
	BeanVarietyID  uuid.UUID        `gorm:"type:uuid;not null;index"`
	RoasterID      uuid.UUID        `gorm:"type:uuid;not null;index;uniqueIndex:idx_roast_batches_active_roaster,where:status = 'in_progress'"`
	InitialWeight  int              `gorm:"not null"`
	EstimatedYield int              `gorm:"not null"`
	Density        *decimal.Decimal `gorm:"type:decimal(7,2)"`
	TargetProfile  *string
	Status         BatchState `gorm:"type:varchar(20);not null;default:'in_progress';index"`

	ActualYield    *int
	FinalTime      *string
	FinalTemp      *int
	ResultPhotoURL *string

	CuppingScore *int
	SensoryNotes *string
	IsApproved   *bool

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	BeanVariety *BeanVariety `gorm:"foreignKey:BeanVarietyID"`
	Roaster     *User        `gorm:"foreignKey:RoasterID"`
	Logs        []RoastLog   `gorm:"foreignKey:BatchID"`
}

func (b *RoastBatch) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = BatchInProgress
	}
	return nil
}

func (b *RoastBatch) IsFinished() bool { return b.Status == BatchFinished }

// FirstCrack returns the earliest log flagged as first crack, or nil.
// Logs must already be ordered by time index.
func (b *RoastBatch) FirstCrack() *RoastLog {
	for i := range b.Logs {
		if b.Logs[i].IsFirstCrack {
			return &b.Logs[i]
		}
	}
	return nil
}
