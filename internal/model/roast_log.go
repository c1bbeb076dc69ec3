package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoastLog is one immutable telemetry sample taken during a roast.
type RoastLog struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	BatchID      uuid.UUID `gorm:"type:uuid;not null;index:idx_roast_logs_batch_time,priority:1"`
	TimeIndex    int       `gorm:"not null;index:idx_roast_logs_batch_time,priority:2"` // seconds since charge
	Temperature  float64   `gorm:"not null"`                                            // °C
	Airflow      int       `gorm:"not null"`                                            // 0 | 25 | 50 | 75 | 100
	IsFirstCrack bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time
}

func (l *RoastLog) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
