// Package engine defines the training engine collaborator: the
// external process (or test double) that performs the actual
// forward/backward passes and reports progress back to the
// lifecycle controller.
package engine

import (
	"context"

	"github.com/trainyard-cloud/trainyard/internal/models"
)

// Callbacks receive asynchronous engine events. Progress, Log,
// Metric and Checkpoint are fire-and-forget appends; Completed
// and Failed are terminal and an engine emits at most one of
// them per handle.
type Callbacks struct {
	Progress   func(epoch, totalEpochs int, step, totalSteps *int)
	Log        func(level models.LogLevel, message string)
	Metric     func(m MetricEvent)
	Checkpoint func(path string, epoch int)
	Completed  func(finalLoss, finalAccuracy float64)
	Failed     func(message string)
}

// MetricEvent is one metric observation. Extra carries engine
// specific series (per-loss components, mAP variants) beyond the
// primary loss/accuracy pair.
type MetricEvent struct {
	Epoch    int
	Step     *int
	Loss     float64
	Accuracy *float64
	Extra    map[string]float64
}

// Handle addresses one in-flight training session. Suspension is
// cooperative: the engine finishes its current unit of work before
// honoring Pause or Cancel.
type Handle interface {
	Pause() error
	Resume() error
	Cancel() error
}

// Engine starts training sessions. The context is the hard
// cancellation token for the whole session; Handle.Cancel is the
// cooperative path.
type Engine interface {
	Start(ctx context.Context, run *models.TrainingRun, cfg models.RunConfig, cb Callbacks) (Handle, error)
}
