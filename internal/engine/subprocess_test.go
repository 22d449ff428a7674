package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/trainyard-cloud/trainyard/internal/models"
)

// trainerScript fakes a trainer: it ignores its CLI flags and
// emits a fixed event stream.
const trainerScript = `#!/bin/sh
echo '{"type":"log","level":"info","message":"starting"}'
echo '{"type":"metric","epoch":1,"loss":0.9,"accuracy":0.5}'
echo '{"type":"progress","epoch":1,"totalEpochs":2}'
echo '{"type":"checkpoint","path":"/tmp/best.pt","epoch":1}'
echo '{"type":"completed","finalLoss":0.2,"finalAccuracy":0.95,"duration":1.0}'
`

const crashingScript = `#!/bin/sh
echo '{"type":"log","level":"info","message":"starting"}'
exit 3
`

type recorder struct {
	mu        sync.Mutex
	logs      []string
	metrics   []MetricEvent
	progress  int
	ckpts     []string
	completed []float64
	failures  []string
	done      chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		Progress: func(epoch, total int, step, totalSteps *int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress++
		},
		Log: func(level models.LogLevel, message string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.logs = append(r.logs, message)
		},
		Metric: func(m MetricEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.metrics = append(r.metrics, m)
		},
		Checkpoint: func(path string, epoch int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.ckpts = append(r.ckpts, path)
		},
		Completed: func(loss, accuracy float64) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completed = append(r.completed, loss, accuracy)
			close(r.done)
		},
		Failed: func(message string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.failures = append(r.failures, message)
			close(r.done)
		},
	}
}

func writeScript(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "trainer.sh")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	return path
}

func testRun() (*models.TrainingRun, models.RunConfig) {
	cfg := models.RunConfig{
		SchemaVersion: models.RunConfigSchemaVersion,
		TotalEpochs:   2,
		BatchSize:     4,
		LearningRate:  0.01,
		Architecture:  "yolov8n",
	}

	return &models.TrainingRun{
		ID:           uuid.New(),
		Status:       models.RunStatusQueued,
		TotalEpochs:  cfg.TotalEpochs,
		BatchSize:    cfg.BatchSize,
		LearningRate: cfg.LearningRate,
		Architecture: cfg.Architecture,
		Config:       cfg,
	}, cfg
}

func TestSubprocessBridgesEventStream(t *testing.T) {
	rec := newRecorder()
	run, cfg := testRun()

	e := NewSubprocess("/bin/sh", writeScript(t, trainerScript))
	_, err := e.Start(context.Background(), run, cfg, rec.callbacks())
	require.NoError(t, err)

	select {
	case <-rec.done:
	case <-time.After(5 * time.Second):
		t.Fatal("trainer did not report a terminal event")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	require.Equal(t, []string{"starting"}, rec.logs)
	require.Len(t, rec.metrics, 1)
	require.Equal(t, 0.9, rec.metrics[0].Loss)
	require.Equal(t, 1, rec.progress)
	require.Equal(t, []string{"/tmp/best.pt"}, rec.ckpts)
	require.Equal(t, []float64{0.2, 0.95}, rec.completed)
	require.Empty(t, rec.failures)
}

func TestSubprocessCrashReportsFailureOnce(t *testing.T) {
	rec := newRecorder()
	run, cfg := testRun()

	e := NewSubprocess("/bin/sh", writeScript(t, crashingScript))
	_, err := e.Start(context.Background(), run, cfg, rec.callbacks())
	require.NoError(t, err)

	select {
	case <-rec.done:
	case <-time.After(5 * time.Second):
		t.Fatal("crash was not surfaced")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	require.Len(t, rec.failures, 1)
	require.Contains(t, rec.failures[0], "trainer exited")
	require.Empty(t, rec.completed)
}
