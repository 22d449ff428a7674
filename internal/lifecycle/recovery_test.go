package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/trainyard-cloud/trainyard/internal/models"
	"github.com/trainyard-cloud/trainyard/pkg/db"
)

func TestRecoverCancelsStrandedRuns(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "trainyard.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	conn, err := store.Conn()
	require.NoError(t, err)

	model := &models.Model{ID: uuid.New(), Name: "m", Architecture: "mlp"}
	require.NoError(t, conn.Create(model).Error)

	seed := func(status models.RunStatus) *models.TrainingRun {
		run := &models.TrainingRun{
			ID:           uuid.New(),
			Name:         string(status),
			ModelID:      model.ID,
			Status:       status,
			TotalEpochs:  10,
			BatchSize:    32,
			LearningRate: 0.001,
			Architecture: "mlp",
			StartedAt:    time.Now().UTC(),
		}
		if status.Terminal() {
			now := time.Now().UTC()
			run.FinishedAt = &now
		}
		require.NoError(t, conn.Create(run).Error)
		return run
	}

	running := seed(models.RunStatusRunning)
	queued := seed(models.RunStatusQueued)
	paused := seed(models.RunStatusPaused)
	completed := seed(models.RunStatusCompleted)

	recovered, err := Recover(context.Background(), store)
	require.NoError(t, err)
	require.Equal(t, 2, recovered)

	for _, id := range []uuid.UUID{running.ID, queued.ID} {
		var run models.TrainingRun
		require.NoError(t, conn.First(&run, "id = ?", id).Error)
		require.Equal(t, models.RunStatusCancelled, run.Status)
		require.NotNil(t, run.FinishedAt)
		require.True(t, run.ConsistentFinish())

		var entry models.LogEntry
		require.NoError(t, conn.
			Where("run_id = ? AND message LIKE ?", id, "%restart%").
			First(&entry).Error)
		require.Equal(t, models.LogLevelWarning, entry.Level)
	}

	// paused and terminal runs are untouched
	var stillPaused models.TrainingRun
	require.NoError(t, conn.First(&stillPaused, "id = ?", paused.ID).Error)
	require.Equal(t, models.RunStatusPaused, stillPaused.Status)

	var stillCompleted models.TrainingRun
	require.NoError(t, conn.First(&stillCompleted, "id = ?", completed.ID).Error)
	require.Equal(t, models.RunStatusCompleted, stillCompleted.Status)

	// a second pass finds nothing to do
	recovered, err = Recover(context.Background(), store)
	require.NoError(t, err)
	require.Zero(t, recovered)
}
