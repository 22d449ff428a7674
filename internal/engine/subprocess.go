package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/trainyard-cloud/trainyard/internal/models"
	"github.com/trainyard-cloud/trainyard/pkg/log"
)

// Subprocess runs the trainer as a child process and bridges its
// JSON-line protocol onto Callbacks.
type Subprocess struct {
	python string
	script string
}

func NewSubprocess(python, script string) *Subprocess {
	return &Subprocess{python: python, script: script}
}

func (e *Subprocess) Start(
	ctx context.Context,
	run *models.TrainingRun,
	cfg models.RunConfig,
	cb Callbacks,
) (Handle, error) {
	args := []string{
		e.script,
		"--model", cfg.Architecture,
		"--epochs", strconv.Itoa(cfg.TotalEpochs),
		"--batch-size", strconv.Itoa(cfg.BatchSize),
		"--learning-rate", strconv.FormatFloat(cfg.LearningRate, 'f', -1, 64),
	}
	if cfg.DatasetPath != "" {
		args = append(args, "--dataset", cfg.DatasetPath)
	}
	if cfg.OutputDir != "" {
		args = append(args, "--output-dir", cfg.OutputDir)
	}
	if run.CurrentEpoch > 0 {
		args = append(args, "--resume")
	}

	cmd := exec.CommandContext(ctx, e.python, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &subprocessHandle{stdin: stdin}

	go h.pump(cmd, stdout, cb)

	return h, nil
}

type subprocessHandle struct {
	stdin io.WriteCloser

	mu       sync.Mutex
	terminal bool
}

func (h *subprocessHandle) Pause() error  { return h.send(commandPause) }
func (h *subprocessHandle) Resume() error { return h.send(commandResume) }
func (h *subprocessHandle) Cancel() error { return h.send(commandCancel) }

func (h *subprocessHandle) send(command string) error {
	buf, err := encodeCommand(command)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err = h.stdin.Write(buf)
	return err
}

// pump reads trainer events until EOF and dispatches callbacks.
// The terminal guard enforces at-most-once completed/failed even
// against a misbehaving trainer.
func (h *subprocessHandle) pump(cmd *exec.Cmd, stdout io.Reader, cb Callbacks) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		e, err := decodeEvent(line)
		if err != nil {
			log.Warn("undecodable trainer event", "error", err)
			continue
		}

		switch e.Type {
		case eventProgress:
			if cb.Progress != nil {
				cb.Progress(e.Epoch, e.TotalEpochs, e.Step, e.TotalSteps)
			}
		case eventMetric:
			if cb.Metric != nil {
				cb.Metric(MetricEvent{
					Epoch:    e.Epoch,
					Step:     e.Step,
					Loss:     e.Loss,
					Accuracy: e.Accuracy,
					Extra:    e.Extra,
				})
			}
		case eventLog:
			if cb.Log != nil {
				cb.Log(models.LogLevel(e.Level), e.Message)
			}
		case eventCheckpoint:
			if cb.Checkpoint != nil {
				cb.Checkpoint(e.Path, e.Epoch)
			}
		case eventCompleted:
			if h.markTerminal() && cb.Completed != nil {
				cb.Completed(e.FinalLoss, e.FinalAccuracy)
			}
		case eventError:
			if h.markTerminal() && cb.Failed != nil {
				cb.Failed(e.Message)
			}
		default:
			log.Debug("ignoring unknown trainer event", "type", e.Type)
		}
	}

	err := cmd.Wait()

	// a trainer that dies without a terminal event still fails the run
	if h.markTerminal() && cb.Failed != nil {
		msg := "trainer exited without reporting a result"
		if err != nil {
			msg = fmt.Sprintf("trainer exited: %v", err)
		}
		cb.Failed(msg)
	}
}

func (h *subprocessHandle) markTerminal() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.terminal {
		return false
	}
	h.terminal = true
	return true
}
