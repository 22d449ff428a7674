package models

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactType classifies what a stored blob is.
type ArtifactType string

const (
	ArtifactTypeCheckpoint ArtifactType = "checkpoint"
	ArtifactTypeModel      ArtifactType = "model"
	ArtifactTypeLog        ArtifactType = "log"
	ArtifactTypePlot       ArtifactType = "plot"
	ArtifactTypeData       ArtifactType = "data"
)

// Artifact is the metadata row for one content-addressed blob.
// Digest is the lowercase hex SHA-256 of the blob's bytes and is
// the primary key, so identical content collapses to one row.
// RunID is nullable: an artifact may outlive its run until the
// garbage collector reclaims it.
type Artifact struct {
	Digest    string       `gorm:"type:text;primaryKey" json:"digest"`
	RunID     *uuid.UUID   `gorm:"type:uuid;index" json:"run_id,omitempty"`
	Type      ArtifactType `gorm:"type:text;not null" json:"type"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Size      int64        `gorm:"not null" json:"size"`
	LocalPath string       `gorm:"type:text;not null" json:"local_path"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}
