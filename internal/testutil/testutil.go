package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/trainyard-cloud/trainyard/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB returns an in-memory sqlite DB with the full schema
// applied and foreign keys enforced.
func OpenTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}

	if err := db.Exec("PRAGMA foreign_keys=ON").Error; err != nil {
		tb.Fatalf("enable foreign keys: %v", err)
	}

	if err := db.AutoMigrate(models.All...); err != nil {
		tb.Fatalf("migrate: %v", err)
	}

	return db
}

// CloseDB closes the underlying sql.DB if available.
func CloseDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// AssertCount asserts a count for the provided model using the supplied DB.
func AssertCount(tb testing.TB, db *gorm.DB, model any, expected int64) {
	tb.Helper()

	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		tb.Fatalf("count: %v", err)
	}
	if count != expected {
		tb.Fatalf("expected %d records, got %d", expected, count)
	}
}

// SeedModel inserts a minimal model row.
func SeedModel(tb testing.TB, db *gorm.DB) *models.Model {
	tb.Helper()

	m := &models.Model{
		ID:           uuid.New(),
		Name:         "mnist-mlp",
		Architecture: "mlp",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := db.Create(m).Error; err != nil {
		tb.Fatalf("seed model: %v", err)
	}

	return m
}

// SeedRun inserts a run owned by modelID in the given status.
func SeedRun(tb testing.TB, db *gorm.DB, modelID uuid.UUID, status models.RunStatus) *models.TrainingRun {
	tb.Helper()

	run := &models.TrainingRun{
		ID:           uuid.New(),
		Name:         "run-" + uuid.NewString()[:8],
		ModelID:      modelID,
		Status:       status,
		TotalEpochs:  10,
		BatchSize:    32,
		LearningRate: 0.001,
		Architecture: "mlp",
		Config: models.RunConfig{
			SchemaVersion: models.RunConfigSchemaVersion,
			TotalEpochs:   10,
			BatchSize:     32,
			LearningRate:  0.001,
			Architecture:  "mlp",
		},
		StartedAt: time.Now().UTC(),
	}

	if status.Terminal() {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	if err := db.Create(run).Error; err != nil {
		tb.Fatalf("seed run: %v", err)
	}

	return run
}
