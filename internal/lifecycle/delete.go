package lifecycle

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/trainyard-cloud/trainyard/internal/event"
	"github.com/trainyard-cloud/trainyard/internal/models"
	"github.com/trainyard-cloud/trainyard/pkg/log"
	"gorm.io/gorm"
)

// DeleteRun removes a run and everything it owns. Order matters
// for crash safety: cancel first (the run stays cancellable if we
// die mid-delete), then artifacts, then the row, whose foreign
// keys cascade to metrics and logs.
func (c *Controller) DeleteRun(ctx context.Context, id uuid.UUID) error {
	run, err := c.loadRun(ctx, id)
	if err != nil {
		return err
	}

	if run.Status.Active() {
		if err := c.cancelWithReason(ctx, id, "run deleted while active"); err != nil {
			return err
		}
	}

	if err := c.artifacts.DeleteByRun(ctx, id); err != nil {
		return err
	}

	err = c.store.Write(ctx, func(tx *gorm.DB) error {
		return tx.Delete(&models.TrainingRun{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}

	c.registry.Remove(id)
	c.publish(event.TypeRunDeleted, run)

	c.mu.Lock()
	delete(c.locks, id)
	c.mu.Unlock()

	return nil
}

// DeleteRuns deletes each run, continuing past individual
// failures and returning them joined.
func (c *Controller) DeleteRuns(ctx context.Context, ids []uuid.UUID) error {
	var errs []error

	for _, id := range ids {
		if err := c.DeleteRun(ctx, id); err != nil {
			log.Error("run delete failed", "run_id", id, "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
