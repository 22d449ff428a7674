package db

import (
	"time"

	"github.com/pkg/errors"
	"github.com/trainyard-cloud/trainyard/internal/models"
	"github.com/trainyard-cloud/trainyard/pkg/log"
	"gorm.io/gorm"
)

// SchemaMigration records an applied migration step.
type SchemaMigration struct {
	Name      string    `gorm:"type:text;primaryKey"`
	AppliedAt time.Time `gorm:"not null"`
}

type migration struct {
	name string
	up   func(tx *gorm.DB) error
}

// migrations is the ordered, append-only schema history. Steps
// must be idempotent: a step either fully applies inside its
// transaction or the store refuses to open.
var migrations = []migration{
	{
		name: "001_initial_schema",
		up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(models.All...)
		},
	},
	{
		name: "002_run_model_status_index",
		up: func(tx *gorm.DB) error {
			return tx.Exec(
				"CREATE INDEX IF NOT EXISTS idx_runs_model_status ON training_runs (model_id, status)",
			).Error
		},
	},
	{
		name: "003_artifact_orphan_index",
		up: func(tx *gorm.DB) error {
			return tx.Exec(
				"CREATE INDEX IF NOT EXISTS idx_artifacts_orphan ON artifacts (created_at) WHERE run_id IS NULL",
			).Error
		},
	},
}

// Migrate applies every unapplied migration step in order, each
// in its own transaction together with its history row. A failed
// step aborts the remainder and surfaces ErrMigrationFailed.
func (s *Store) Migrate() error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}

	if err := s.db.AutoMigrate(&SchemaMigration{}); err != nil {
		return errors.Wrap(ErrMigrationFailed, err.Error())
	}

	for _, m := range migrations {
		var applied int64
		if err := s.db.Model(&SchemaMigration{}).
			Where("name = ?", m.name).
			Count(&applied).Error; err != nil {
			return errors.Wrap(ErrMigrationFailed, err.Error())
		}

		if applied > 0 {
			continue
		}

		log.Info("applying schema migration", "name", m.name)

		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := m.up(tx); err != nil {
				return err
			}

			return tx.Create(&SchemaMigration{
				Name:      m.name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return errors.Wrapf(ErrMigrationFailed, "%v: %v", m.name, err)
		}
	}

	return nil
}
