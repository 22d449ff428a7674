package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus enumerates the lifecycle states of a training run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// Active reports whether the run still occupies the engine,
// now or after a resume.
func (s RunStatus) Active() bool {
	switch s {
	case RunStatusQueued, RunStatusRunning, RunStatusPaused:
		return true
	}
	return false
}

// RunConfig is the typed hyperparameter document persisted with
// every run. SchemaVersion guards decoding of rows written by
// older builds.
type RunConfig struct {
	SchemaVersion    int      `json:"schema_version"`
	TotalEpochs      int      `json:"total_epochs"`
	BatchSize        int      `json:"batch_size"`
	LearningRate     float64  `json:"learning_rate"`
	Architecture     string   `json:"architecture"`
	DatasetPath      string   `json:"dataset_path,omitempty"`
	OutputDir        string   `json:"output_dir,omitempty"`
	ArtifactPatterns []string `json:"artifact_patterns,omitempty"`
}

// RunConfigSchemaVersion is stamped onto configs written by this build.
const RunConfigSchemaVersion = 1

type TrainingRun struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string     `gorm:"type:text;not null" json:"name"`
	ModelID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"model_id"`
	ExperimentID *uuid.UUID `gorm:"type:uuid;index" json:"experiment_id,omitempty"`
	Status       RunStatus  `gorm:"type:text;index;not null" json:"status"`
	Progress     float64    `gorm:"not null;default:0" json:"progress"`
	CurrentEpoch int        `gorm:"not null;default:0" json:"current_epoch"`
	TotalEpochs  int        `gorm:"not null" json:"total_epochs"`
	BatchSize    int        `gorm:"not null" json:"batch_size"`
	LearningRate float64    `gorm:"not null" json:"learning_rate"`
	Architecture string     `gorm:"type:text;not null" json:"architecture"`
	Config       RunConfig  `gorm:"type:json;serializer:json" json:"config"`
	Loss         *float64   `json:"loss,omitempty"`
	Accuracy     *float64   `json:"accuracy,omitempty"`
	Precision    *float64   `json:"precision,omitempty"`
	Recall       *float64   `json:"recall,omitempty"`
	F1Score      *float64   `json:"f1_score,omitempty"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
	Metrics      []*Metric   `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"metrics,omitempty"`
	Logs         []*LogEntry `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"logs,omitempty"`
	Artifacts    []*Artifact `gorm:"foreignKey:RunID;constraint:OnDelete:SET NULL" json:"artifacts,omitempty"`
}

// ConsistentFinish verifies the finished_at/terminal-status invariant.
func (r *TrainingRun) ConsistentFinish() bool {
	return (r.FinishedAt != nil) == r.Status.Terminal()
}
