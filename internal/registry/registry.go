package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/trainyard-cloud/trainyard/internal/models"
	"gorm.io/gorm"
)

// Registry is the in-memory mirror of persisted runs. It is
// warmed once at boot and updated incrementally by lifecycle
// callbacks, never by polling. All reads return copies, so UI
// consumers hold no reference into the cache and never touch
// the database.
type Registry struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*models.TrainingRun
}

func New() *Registry {
	return &Registry{
		runs: make(map[uuid.UUID]*models.TrainingRun),
	}
}

// WarmUp replaces the cache with every persisted run.
func (r *Registry) WarmUp(ctx context.Context, conn *gorm.DB) error {
	var runs []*models.TrainingRun
	if err := conn.WithContext(ctx).Find(&runs).Error; err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs = make(map[uuid.UUID]*models.TrainingRun, len(runs))
	for _, run := range runs {
		r.runs[run.ID] = copyRun(run)
	}

	return nil
}

// Apply upserts a run snapshot into the cache.
func (r *Registry) Apply(run *models.TrainingRun) {
	if run == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[run.ID] = copyRun(run)
}

// Remove drops a run from the cache.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.runs, id)
}

// Get returns a copy of one cached run.
func (r *Registry) Get(id uuid.UUID) (*models.TrainingRun, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, false
	}

	return copyRun(run), true
}

// All returns every cached run, newest first.
func (r *Registry) All() []*models.TrainingRun {
	return r.filter(func(*models.TrainingRun) bool { return true })
}

// Active returns runs in queued, running, or paused.
func (r *Registry) Active() []*models.TrainingRun {
	return r.filter(func(run *models.TrainingRun) bool {
		return run.Status.Active()
	})
}

// Completed returns successfully finished runs.
func (r *Registry) Completed() []*models.TrainingRun {
	return r.filter(func(run *models.TrainingRun) bool {
		return run.Status == models.RunStatusCompleted
	})
}

// Failed returns failed runs.
func (r *Registry) Failed() []*models.TrainingRun {
	return r.filter(func(run *models.TrainingRun) bool {
		return run.Status == models.RunStatusFailed
	})
}

// ByModel returns the runs owned by a model.
func (r *Registry) ByModel(modelID uuid.UUID) []*models.TrainingRun {
	return r.filter(func(run *models.TrainingRun) bool {
		return run.ModelID == modelID
	})
}

// ByExperiment returns the runs attached to an experiment.
func (r *Registry) ByExperiment(experimentID uuid.UUID) []*models.TrainingRun {
	return r.filter(func(run *models.TrainingRun) bool {
		return run.ExperimentID != nil && *run.ExperimentID == experimentID
	})
}

// ByStatus returns the runs in one status.
func (r *Registry) ByStatus(status models.RunStatus) []*models.TrainingRun {
	return r.filter(func(run *models.TrainingRun) bool {
		return run.Status == status
	})
}

func (r *Registry) filter(keep func(*models.TrainingRun) bool) []*models.TrainingRun {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]*models.TrainingRun, 0, len(r.runs))
	for _, run := range r.runs {
		if keep(run) {
			runs = append(runs, copyRun(run))
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID.String() < runs[j].ID.String()
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs
}

func copyRun(src *models.TrainingRun) *models.TrainingRun {
	if src == nil {
		return nil
	}

	dst := *src

	// the cache mirrors run rows, not their child collections
	dst.Metrics = nil
	dst.Logs = nil
	dst.Artifacts = nil

	if src.ExperimentID != nil {
		id := *src.ExperimentID
		dst.ExperimentID = &id
	}
	if src.FinishedAt != nil {
		finished := *src.FinishedAt
		dst.FinishedAt = &finished
	}
	for _, field := range []struct {
		src *float64
		dst **float64
	}{
		{src.Loss, &dst.Loss},
		{src.Accuracy, &dst.Accuracy},
		{src.Precision, &dst.Precision},
		{src.Recall, &dst.Recall},
		{src.F1Score, &dst.F1Score},
	} {
		if field.src != nil {
			v := *field.src
			*field.dst = &v
		}
	}

	if src.Config.ArtifactPatterns != nil {
		dst.Config.ArtifactPatterns = append(
			[]string(nil), src.Config.ArtifactPatterns...)
	}

	return &dst
}
