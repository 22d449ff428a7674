package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Model struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string            `gorm:"type:text;not null" json:"name"`
	Architecture string            `gorm:"type:text;not null" json:"architecture"`
	Labels       datatypes.JSONMap `gorm:"type:json" json:"labels,omitempty"`
	CreatedAt    time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null" json:"updated_at"`
	Runs         []*TrainingRun    `gorm:"foreignKey:ModelID;constraint:OnDelete:CASCADE" json:"runs,omitempty"`
}
