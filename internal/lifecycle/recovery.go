package lifecycle

import (
	"context"
	"time"

	"github.com/trainyard-cloud/trainyard/internal/models"
	"github.com/trainyard-cloud/trainyard/pkg/db"
	"github.com/trainyard-cloud/trainyard/pkg/log"
	"gorm.io/gorm"
)

// Recover reconciles the durable store against reality at process
// startup: no run can legitimately be running or queued when the
// process has just started, so each such run is forced to
// cancelled with a log entry naming the restart. Runs before the
// controller accepts commands and before any UI attaches.
func Recover(ctx context.Context, store *db.Store) (int, error) {
	var stranded []*models.TrainingRun

	err := store.Read(ctx, func(tx *gorm.DB) error {
		return tx.
			Where("status IN ?", []models.RunStatus{
				models.RunStatusRunning,
				models.RunStatusQueued,
			}).
			Find(&stranded).Error
	})
	if err != nil {
		return 0, err
	}

	for _, run := range stranded {
		now := time.Now().UTC()
		run.Status = models.RunStatusCancelled
		run.FinishedAt = &now
		run.UpdatedAt = now

		err := store.Write(ctx, func(tx *gorm.DB) error {
			if err := tx.Save(run).Error; err != nil {
				return err
			}

			return tx.Create(&models.LogEntry{
				RunID:     run.ID,
				Timestamp: now,
				Level:     models.LogLevelWarning,
				Message:   "run terminated by application restart",
			}).Error
		})
		if err != nil {
			return 0, err
		}

		log.Warn("recovered stranded run", "run_id", run.ID, "name", run.Name)
	}

	return len(stranded), nil
}
