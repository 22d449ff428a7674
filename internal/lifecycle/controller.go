// Package lifecycle owns the run state machine. Every transition
// is persisted before it is acknowledged to the caller, so the
// last persisted status is always the ground truth a restart can
// recover from.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trainyard-cloud/trainyard/internal/artifact"
	"github.com/trainyard-cloud/trainyard/internal/engine"
	"github.com/trainyard-cloud/trainyard/internal/event"
	"github.com/trainyard-cloud/trainyard/internal/models"
	"github.com/trainyard-cloud/trainyard/internal/registry"
	"github.com/trainyard-cloud/trainyard/internal/worker"
	"github.com/trainyard-cloud/trainyard/pkg/db"
	"github.com/trainyard-cloud/trainyard/pkg/log"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("training run not found")
	ErrInvalidRequest    = errors.New("invalid start request")
	ErrRunActive         = errors.New("training run already has an active session")
	ErrNoActiveSession   = errors.New("training run has no active engine session")
	ErrInvalidTransition = errors.New("invalid run status transition")
)

// transitions lists the user-drivable edges of the state machine.
// Engine-reported terminal states are persisted unconditionally
// and bypass this table.
var transitions = map[models.RunStatus][]models.RunStatus{
	models.RunStatusQueued:  {models.RunStatusRunning, models.RunStatusCancelled},
	models.RunStatusRunning: {models.RunStatusPaused, models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusCancelled},
	models.RunStatusPaused:  {models.RunStatusRunning, models.RunStatusCancelled},
}

func canTransition(from, to models.RunStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Config carries the controller's tunables.
type Config struct {
	// DataDir roots per-run output directories.
	DataDir string
	// MaxConcurrentRuns bounds simultaneous engine sessions;
	// runs beyond it wait in queued.
	MaxConcurrentRuns int
}

// defaultArtifactPatterns select the trainer outputs ingested on
// completion when a run's config does not name its own.
var defaultArtifactPatterns = []string{
	"**/*.pt", "**/*.ckpt", "**/*.onnx", "**/*.png",
}

// Controller coordinates the durable store, the artifact store,
// the run registry, and the training engine. Operations on the
// same run are totally ordered; different runs proceed
// independently.
type Controller struct {
	store     *db.Store
	artifacts *artifact.Store
	engine    engine.Engine
	registry  *registry.Registry
	bus       event.Bus
	cfg       Config
	pool      *worker.Pool

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	locks    map[uuid.UUID]*sync.Mutex
}

type session struct {
	handle engine.Handle
	cancel context.CancelFunc
}

func New(
	store *db.Store,
	artifacts *artifact.Store,
	eng engine.Engine,
	reg *registry.Registry,
	bus event.Bus,
	cfg Config,
) *Controller {
	return &Controller{
		store:     store,
		artifacts: artifacts,
		engine:    eng,
		registry:  reg,
		bus:       bus,
		cfg:       cfg,
		pool:      worker.NewPool(cfg.MaxConcurrentRuns),
		sessions:  make(map[uuid.UUID]*session),
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

// runLock returns the mutex serializing transitions for one run.
func (c *Controller) runLock(id uuid.UUID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[id] = lock
	}

	return lock
}

// StartRequest describes a new run.
type StartRequest struct {
	Name         string
	ModelID      uuid.UUID
	ExperimentID *uuid.UUID
	Config       models.RunConfig
}

func (r *StartRequest) validate() error {
	if r.ModelID == uuid.Nil {
		return fmt.Errorf("%w: model id is required", ErrInvalidRequest)
	}
	if r.Config.TotalEpochs <= 0 {
		return fmt.Errorf("%w: total epochs must be positive", ErrInvalidRequest)
	}
	if r.Config.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidRequest)
	}
	if r.Config.LearningRate <= 0 {
		return fmt.Errorf("%w: learning rate must be positive", ErrInvalidRequest)
	}
	return nil
}

// Start creates the run in queued, registers its session guard,
// and hands it to the engine asynchronously. The returned
// snapshot reflects the persisted queued state.
func (c *Controller) Start(ctx context.Context, req *StartRequest) (*models.TrainingRun, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cfg := req.Config
	cfg.SchemaVersion = models.RunConfigSchemaVersion

	run := &models.TrainingRun{
		ID:           uuid.New(),
		Name:         req.Name,
		ModelID:      req.ModelID,
		ExperimentID: req.ExperimentID,
		Status:       models.RunStatusQueued,
		TotalEpochs:  cfg.TotalEpochs,
		BatchSize:    cfg.BatchSize,
		LearningRate: cfg.LearningRate,
		Architecture: cfg.Architecture,
		StartedAt:    now,
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(c.cfg.DataDir, "runs", run.ID.String())
	}
	if len(cfg.ArtifactPatterns) == 0 {
		cfg.ArtifactPatterns = append([]string(nil), defaultArtifactPatterns...)
	}
	run.Config = cfg

	if err := c.register(run.ID); err != nil {
		return nil, err
	}

	err := c.store.Write(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		return tx.Create(c.runLogEntry(run.ID, models.LogLevelInfo, "run queued")).Error
	})
	if err != nil {
		c.unregister(run.ID)
		return nil, err
	}

	c.registry.Apply(run)
	c.publish(event.TypeRunQueued, run)

	c.dispatch(run.ID)

	return run, nil
}

// register installs the per-run idempotency guard.
func (c *Controller) register(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[id]; ok {
		return ErrRunActive
	}

	c.sessions[id] = &session{}
	return nil
}

func (c *Controller) unregister(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sess, ok := c.sessions[id]; ok {
		if sess.cancel != nil {
			sess.cancel()
		}
		delete(c.sessions, id)
	}
}

func (c *Controller) lookup(id uuid.UUID) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[id]
}

// dispatch queues the run for an engine slot. The session context
// outlives the caller's request context: the run belongs to the
// daemon once acknowledged.
func (c *Controller) dispatch(id uuid.UUID) {
	sessCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	sess, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		cancel()
		return
	}
	sess.cancel = cancel
	c.mu.Unlock()

	go func() {
		if err := c.pool.Submit(sessCtx, func() { c.launch(sessCtx, id) }); err != nil {
			// cancelled while waiting in queued; the cancel path
			// has already persisted the terminal state
			log.Debug("run left the queue before launch", "run_id", id, "reason", err)
		}
	}()
}

// launch acquires the engine for a queued or resuming run, then
// holds its pool slot until the session ends so MaxConcurrentRuns
// bounds live engine processes, not launch calls.
func (c *Controller) launch(ctx context.Context, id uuid.UUID) {
	if c.launchLocked(ctx, id) {
		// the session context is cancelled when the run reaches a
		// terminal state and its guard is unregistered
		<-ctx.Done()
	}
}

// launchLocked performs the queued->running (or paused->running)
// transition and reports whether an engine session now owns the
// caller's pool slot.
func (c *Controller) launchLocked(ctx context.Context, id uuid.UUID) bool {
	lock := c.runLock(id)
	lock.Lock()
	defer lock.Unlock()

	run, err := c.loadRun(ctx, id)
	if err != nil {
		log.Error("launch aborted: run unreadable", "run_id", id, "error", err)
		return false
	}

	resuming := run.Status == models.RunStatusPaused
	if run.Status != models.RunStatusQueued && !resuming {
		// cancelled (or otherwise finished) while waiting
		return false
	}

	handle, err := c.engine.Start(ctx, run, run.Config, c.callbacks(id))
	if err != nil {
		c.failLocked(ctx, run, fmt.Sprintf("engine failed to start: %v", err))
		c.unregister(id)
		return false
	}

	c.mu.Lock()
	if sess, ok := c.sessions[id]; ok {
		sess.handle = handle
	}
	c.mu.Unlock()

	run.Status = models.RunStatusRunning
	message := "training started"
	eventType := event.TypeRunStarted
	if resuming {
		message = fmt.Sprintf("training resumed from epoch %d", run.CurrentEpoch)
		eventType = event.TypeRunResumed
	}

	if err := c.persistRun(ctx, run, message); err != nil {
		log.Error("failed to persist running transition", "run_id", id, "error", err)
		return true
	}

	c.registry.Apply(run)
	c.publish(eventType, run)

	return true
}

// Pause suspends a running run after the engine finishes its
// current unit of work.
func (c *Controller) Pause(ctx context.Context, id uuid.UUID) error {
	lock := c.runLock(id)
	lock.Lock()
	defer lock.Unlock()

	run, err := c.loadRun(ctx, id)
	if err != nil {
		return err
	}

	if !canTransition(run.Status, models.RunStatusPaused) {
		return fmt.Errorf("%w: %s -> paused", ErrInvalidTransition, run.Status)
	}

	sess := c.lookup(id)
	if sess == nil || sess.handle == nil {
		return ErrNoActiveSession
	}

	if err := sess.handle.Pause(); err != nil {
		c.logOntoRun(ctx, id, models.LogLevelError, fmt.Sprintf("pause signal failed: %v", err))
		return err
	}

	run.Status = models.RunStatusPaused
	if err := c.persistRun(ctx, run, "training paused"); err != nil {
		return err
	}

	c.registry.Apply(run)
	c.publish(event.TypeRunPaused, run)

	return nil
}

// Resume re-engages the engine for a paused run. If the original
// session is still alive it is resumed in place; otherwise a new
// session restarts from the last persisted checkpoint.
func (c *Controller) Resume(ctx context.Context, id uuid.UUID) error {
	lock := c.runLock(id)
	lock.Lock()
	defer lock.Unlock()

	run, err := c.loadRun(ctx, id)
	if err != nil {
		return err
	}

	if run.Status != models.RunStatusPaused {
		return fmt.Errorf("%w: %s -> running", ErrInvalidTransition, run.Status)
	}

	if sess := c.lookup(id); sess != nil && sess.handle != nil {
		if err := sess.handle.Resume(); err != nil {
			c.logOntoRun(ctx, id, models.LogLevelError, fmt.Sprintf("resume signal failed: %v", err))
			return err
		}

		run.Status = models.RunStatusRunning
		if err := c.persistRun(ctx, run, fmt.Sprintf("training resumed at epoch %d", run.CurrentEpoch)); err != nil {
			return err
		}

		c.registry.Apply(run)
		c.publish(event.TypeRunResumed, run)

		return nil
	}

	// session is gone (e.g. the slot was reclaimed); requeue from
	// the last checkpoint
	if err := c.register(id); err != nil {
		return err
	}

	c.dispatch(id)
	return nil
}

// Cancel stops a queued, running, or paused run. Cancellation of
// the engine is cooperative; the terminal state is persisted
// before Cancel returns.
func (c *Controller) Cancel(ctx context.Context, id uuid.UUID) error {
	return c.cancelWithReason(ctx, id, "training cancelled by user request")
}

func (c *Controller) cancelWithReason(ctx context.Context, id uuid.UUID, reason string) error {
	lock := c.runLock(id)
	lock.Lock()
	defer lock.Unlock()

	run, err := c.loadRun(ctx, id)
	if err != nil {
		return err
	}

	if !canTransition(run.Status, models.RunStatusCancelled) {
		return fmt.Errorf("%w: %s -> cancelled", ErrInvalidTransition, run.Status)
	}

	if sess := c.lookup(id); sess != nil && sess.handle != nil {
		if err := sess.handle.Cancel(); err != nil {
			c.logOntoRun(ctx, id, models.LogLevelWarning, fmt.Sprintf("cancel signal failed: %v", err))
		}
	}
	c.unregister(id)

	now := time.Now().UTC()
	run.Status = models.RunStatusCancelled
	run.FinishedAt = &now

	if err := c.persistRun(ctx, run, reason); err != nil {
		return err
	}

	c.registry.Apply(run)
	c.publish(event.TypeRunCancelled, run)

	return nil
}

// callbacks binds engine events to one run.
func (c *Controller) callbacks(id uuid.UUID) engine.Callbacks {
	ctx := context.Background()

	return engine.Callbacks{
		Progress: func(epoch, totalEpochs int, step, totalSteps *int) {
			c.onProgress(ctx, id, epoch, totalEpochs, step, totalSteps)
		},
		Log: func(level models.LogLevel, message string) {
			c.logOntoRun(ctx, id, level, message)
			if run, ok := c.registry.Get(id); ok {
				c.publish(event.TypeLogAppended, run)
			}
		},
		Metric: func(m engine.MetricEvent) {
			c.onMetric(ctx, id, m)
		},
		Checkpoint: func(path string, epoch int) {
			c.onCheckpoint(ctx, id, path, epoch)
		},
		Completed: func(finalLoss, finalAccuracy float64) {
			c.onCompleted(ctx, id, finalLoss, finalAccuracy)
		},
		Failed: func(message string) {
			c.onFailed(ctx, id, message)
		},
	}
}

func (c *Controller) onProgress(ctx context.Context, id uuid.UUID, epoch, totalEpochs int, step, totalSteps *int) {
	lock := c.runLock(id)
	lock.Lock()
	defer lock.Unlock()

	run, err := c.loadRun(ctx, id)
	if err != nil {
		log.Error("progress dropped: run unreadable", "run_id", id, "error", err)
		return
	}
	if run.Status.Terminal() {
		return
	}

	if totalEpochs <= 0 {
		totalEpochs = run.TotalEpochs
	}

	run.CurrentEpoch = epoch
	run.Progress = progressOf(epoch, totalEpochs, step, totalSteps)

	if err := c.persistRun(ctx, run); err != nil {
		log.Error("failed to persist progress", "run_id", id, "error", err)
		return
	}

	c.registry.Apply(run)
	c.publish(event.TypeRunProgress, run)
}

func progressOf(epoch, totalEpochs int, step, totalSteps *int) float64 {
	if totalEpochs <= 0 {
		return 0
	}

	done := float64(epoch)
	if step != nil && totalSteps != nil && *totalSteps > 0 {
		done = float64(epoch-1) + float64(*step)/float64(*totalSteps)
	}

	p := done / float64(totalEpochs)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// onMetric upserts the reported series at their (epoch, step)
// coordinate: re-emitting a coordinate overwrites, never
// duplicates.
func (c *Controller) onMetric(ctx context.Context, id uuid.UUID, m engine.MetricEvent) {
	lock := c.runLock(id)
	lock.Lock()
	defer lock.Unlock()

	run, err := c.loadRun(ctx, id)
	if err != nil {
		log.Error("metric dropped: run unreadable", "run_id", id, "error", err)
		return
	}
	if run.Status.Terminal() {
		return
	}

	step := 0
	if m.Step != nil {
		step = *m.Step
	}
	now := time.Now().UTC()

	series := map[string]float64{"loss": m.Loss}
	if m.Accuracy != nil {
		series["accuracy"] = *m.Accuracy
	}
	for name, value := range m.Extra {
		series[name] = value
	}

	err = c.store.Write(ctx, func(tx *gorm.DB) error {
		for name, value := range series {
			if err := upsertMetric(tx, &models.Metric{
				RunID:     id,
				Epoch:     m.Epoch,
				Step:      step,
				Name:      name,
				Value:     value,
				Timestamp: now,
			}); err != nil {
				return err
			}
		}

		loss := m.Loss
		run.Loss = &loss
		if m.Accuracy != nil {
			accuracy := *m.Accuracy
			run.Accuracy = &accuracy
		}

		return tx.Save(run).Error
	})
	if err != nil {
		log.Error("failed to persist metrics", "run_id", id, "error", err)
		return
	}

	c.registry.Apply(run)
	c.publish(event.TypeMetricRecorded, run)
}

func (c *Controller) onCheckpoint(ctx context.Context, id uuid.UUID, path string, epoch int) {
	digest, err := c.artifacts.StoreFile(ctx, path, models.ArtifactTypeCheckpoint, &id)
	if err != nil {
		c.logOntoRun(ctx, id, models.LogLevelError,
			fmt.Sprintf("checkpoint ingest failed for %s: %v", path, err))
		return
	}

	log.Debug("checkpoint ingested", "run_id", id, "epoch", epoch, "digest", digest)
}

// onCompleted persists the engine's terminal report
// unconditionally: it is not subject to a user-issued race.
func (c *Controller) onCompleted(ctx context.Context, id uuid.UUID, finalLoss, finalAccuracy float64) {
	lock := c.runLock(id)
	lock.Lock()
	defer lock.Unlock()

	run, err := c.loadRun(ctx, id)
	if err != nil {
		log.Error("completion dropped: run unreadable", "run_id", id, "error", err)
		return
	}

	now := time.Now().UTC()
	run.Status = models.RunStatusCompleted
	if run.FinishedAt == nil {
		run.FinishedAt = &now
	}
	run.Loss = &finalLoss
	run.Accuracy = &finalAccuracy
	run.Progress = 1
	run.CurrentEpoch = run.TotalEpochs

	if err := c.persistRun(ctx, run,
		fmt.Sprintf("training completed with accuracy %.4f", finalAccuracy)); err != nil {
		log.Error("failed to persist completion", "run_id", id, "error", err)
		return
	}

	c.ingestOutputs(ctx, run)

	c.registry.Apply(run)
	c.publish(event.TypeRunCompleted, run)
	c.unregister(id)
}

func (c *Controller) onFailed(ctx context.Context, id uuid.UUID, message string) {
	lock := c.runLock(id)
	lock.Lock()
	defer lock.Unlock()

	run, err := c.loadRun(ctx, id)
	if err != nil {
		log.Error("failure report dropped: run unreadable", "run_id", id, "error", err)
		return
	}

	// a run the user already cancelled stays cancelled; the
	// engine's exit here is a consequence of the cancel signal
	if run.Status == models.RunStatusCancelled {
		log.Debug("ignoring engine failure after cancellation", "run_id", id)
		return
	}

	c.failLocked(ctx, run, message)
	c.unregister(id)
}

// failLocked persists a failed terminal state; the caller holds
// the run lock. Engine failure reports win over locally detected
// errors, so no transition check applies.
func (c *Controller) failLocked(ctx context.Context, run *models.TrainingRun, message string) {
	now := time.Now().UTC()
	run.Status = models.RunStatusFailed
	run.Error = message
	if run.FinishedAt == nil {
		run.FinishedAt = &now
	}

	if err := c.persistRun(ctx, run, message); err != nil {
		log.Error("failed to persist failure", "run_id", run.ID, "error", err)
		return
	}

	c.registry.Apply(run)
	c.publish(event.TypeRunFailed, run)
}

func (c *Controller) loadRun(ctx context.Context, id uuid.UUID) (*models.TrainingRun, error) {
	var run models.TrainingRun

	err := c.store.Read(ctx, func(tx *gorm.DB) error {
		return tx.First(&run, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &run, nil
}

// persistRun saves the run row and optional info log entries in
// one write transaction.
func (c *Controller) persistRun(ctx context.Context, run *models.TrainingRun, messages ...string) error {
	run.UpdatedAt = time.Now().UTC()

	return c.store.Write(ctx, func(tx *gorm.DB) error {
		if err := tx.Save(run).Error; err != nil {
			return err
		}

		for _, message := range messages {
			if err := tx.Create(c.runLogEntry(run.ID, models.LogLevelInfo, message)).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func (c *Controller) runLogEntry(id uuid.UUID, level models.LogLevel, message string) *models.LogEntry {
	return &models.LogEntry{
		RunID:     id,
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
	}
}

// logOntoRun appends a log entry outside any transition. Errors
// here are logged and swallowed: losing a log line must not fail
// the operation that produced it.
func (c *Controller) logOntoRun(ctx context.Context, id uuid.UUID, level models.LogLevel, message string) {
	err := c.store.Write(ctx, func(tx *gorm.DB) error {
		return tx.Create(c.runLogEntry(id, level, message)).Error
	})
	if err != nil {
		log.Error("failed to append run log", "run_id", id, "error", err)
	}
}

func (c *Controller) publish(t event.Type, run *models.TrainingRun) {
	if c.bus == nil {
		return
	}

	c.bus.Publish(event.Event{
		Type:      t,
		RunID:     run.ID,
		ModelID:   run.ModelID,
		Timestamp: time.Now().UTC(),
	})
}
