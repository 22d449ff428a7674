package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/trainyard-cloud/trainyard/internal/models"
)

// Fake is a deterministic in-process engine for tests. Sessions
// do nothing on their own; the test drives them through the
// Emit* methods. Pause/Resume/Cancel signals are recorded on the
// session for assertion.
type Fake struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*FakeSession
	startErr error
}

func NewFake() *Fake {
	return &Fake{sessions: make(map[uuid.UUID]*FakeSession)}
}

// FailNextStart makes the next Start call return err.
func (f *Fake) FailNextStart(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

func (f *Fake) Start(
	ctx context.Context,
	run *models.TrainingRun,
	cfg models.RunConfig,
	cb Callbacks,
) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		err := f.startErr
		f.startErr = nil
		return nil, err
	}

	session := &FakeSession{RunID: run.ID, Config: cfg, cb: cb}
	f.sessions[run.ID] = session

	return session, nil
}

// Session returns the session started for a run, if any.
func (f *Fake) Session(runID uuid.UUID) *FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[runID]
}

type FakeSession struct {
	RunID  uuid.UUID
	Config models.RunConfig

	mu       sync.Mutex
	cb       Callbacks
	terminal bool

	Paused    int
	Resumed   int
	Cancelled int
}

func (s *FakeSession) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Paused++
	return nil
}

func (s *FakeSession) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resumed++
	return nil
}

func (s *FakeSession) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cancelled++
	return nil
}

func (s *FakeSession) EmitProgress(epoch, totalEpochs int) {
	if s.cb.Progress != nil {
		s.cb.Progress(epoch, totalEpochs, nil, nil)
	}
}

func (s *FakeSession) EmitLog(level models.LogLevel, message string) {
	if s.cb.Log != nil {
		s.cb.Log(level, message)
	}
}

func (s *FakeSession) EmitMetric(m MetricEvent) {
	if s.cb.Metric != nil {
		s.cb.Metric(m)
	}
}

func (s *FakeSession) EmitCheckpoint(path string, epoch int) {
	if s.cb.Checkpoint != nil {
		s.cb.Checkpoint(path, epoch)
	}
}

func (s *FakeSession) EmitCompleted(finalLoss, finalAccuracy float64) {
	if s.markTerminal() && s.cb.Completed != nil {
		s.cb.Completed(finalLoss, finalAccuracy)
	}
}

func (s *FakeSession) EmitFailed(message string) {
	if s.markTerminal() && s.cb.Failed != nil {
		s.cb.Failed(message)
	}
}

func (s *FakeSession) markTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal {
		return false
	}
	s.terminal = true
	return true
}
