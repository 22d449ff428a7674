package models

import (
	"time"

	"github.com/google/uuid"
)

// Metric is one observed value at a (run, epoch, step, name)
// coordinate. Step is 0 for epoch-level metrics so the unique
// index treats "no step" as a single coordinate rather than
// distinct NULLs.
type Metric struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_metric_coord" json:"run_id"`
	Epoch     int       `gorm:"not null;uniqueIndex:idx_metric_coord" json:"epoch"`
	Step      int       `gorm:"not null;default:0;uniqueIndex:idx_metric_coord" json:"step"`
	Name      string    `gorm:"type:text;not null;uniqueIndex:idx_metric_coord" json:"name"`
	Value     float64   `gorm:"not null" json:"value"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// LogEntry is an append-only line attached to a run. Canonical
// read order is by timestamp.
type LogEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID     uuid.UUID `gorm:"type:uuid;index;not null" json:"run_id"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	Level     LogLevel  `gorm:"type:text;not null" json:"level"`
	Message   string    `gorm:"type:text;not null" json:"message"`
}

func (LogEntry) TableName() string { return "logs" }
