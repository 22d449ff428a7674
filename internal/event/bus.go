package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type represents the type of event.
type Type string

const (
	TypeRunQueued      Type = "run_queued"
	TypeRunStarted     Type = "run_started"
	TypeRunPaused      Type = "run_paused"
	TypeRunResumed     Type = "run_resumed"
	TypeRunCompleted   Type = "run_completed"
	TypeRunFailed      Type = "run_failed"
	TypeRunCancelled   Type = "run_cancelled"
	TypeRunDeleted     Type = "run_deleted"
	TypeRunProgress    Type = "run_progress"
	TypeMetricRecorded Type = "metric_recorded"
	TypeLogAppended    Type = "log_appended"
	TypeArtifactStored Type = "artifact_stored"
)

// Event represents a system event.
type Event struct {
	Type      Type            `json:"type"`
	RunID     uuid.UUID       `json:"run_id,omitempty"`
	ModelID   uuid.UUID       `json:"model_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Filter defines criteria for receiving events.
type Filter struct {
	RunID   uuid.UUID
	ModelID uuid.UUID
	Types   []Type
}

// Bus defines the event bus interface.
type Bus interface {
	Publish(e Event)
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, error)
}

type bus struct {
	subscribers map[chan Event]Filter
	mu          sync.RWMutex
}

// New creates a new event bus.
func New() Bus {
	return &bus{
		subscribers: make(map[chan Event]Filter),
	}
}

func (b *bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, filter := range b.subscribers {
		if b.matches(filter, e) {
			select {
			case ch <- e:
			default:
				// Drop event if channel is full to prevent blocking
			}
		}
	}
}

func (b *bus) Subscribe(ctx context.Context, filter Filter) (<-chan Event, error) {
	ch := make(chan Event, 100)

	b.mu.Lock()
	b.subscribers[ch] = filter
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch, nil
}

func (b *bus) matches(filter Filter, e Event) bool {
	if filter.RunID != uuid.Nil && filter.RunID != e.RunID {
		return false
	}
	if filter.ModelID != uuid.Nil && filter.ModelID != e.ModelID {
		return false
	}
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
