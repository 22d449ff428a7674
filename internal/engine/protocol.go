package engine

import "encoding/json"

// The trainer process speaks newline-delimited JSON: one wireEvent
// per line on stdout, one wireCommand per line on stdin.

const (
	eventProgress   = "progress"
	eventMetric     = "metric"
	eventLog        = "log"
	eventCheckpoint = "checkpoint"
	eventCompleted  = "completed"
	eventError      = "error"
)

const (
	commandPause  = "pause"
	commandResume = "resume"
	commandCancel = "cancel"
)

type wireEvent struct {
	Type string `json:"type"`

	// progress
	Epoch       int  `json:"epoch,omitempty"`
	TotalEpochs int  `json:"totalEpochs,omitempty"`
	Step        *int `json:"step,omitempty"`
	TotalSteps  *int `json:"totalSteps,omitempty"`

	// metric
	Loss     float64  `json:"loss,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`

	// log / error
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`

	// checkpoint
	Path string `json:"path,omitempty"`

	// completed
	FinalLoss     float64 `json:"finalLoss,omitempty"`
	FinalAccuracy float64 `json:"finalAccuracy,omitempty"`
	Duration      float64 `json:"duration,omitempty"`

	// any additional numeric series the trainer attaches to a
	// metric event (box_loss, mAP50, ...)
	Extra map[string]float64 `json:"-"`
}

// knownEventFields are stripped before collecting Extra series.
var knownEventFields = map[string]bool{
	"type": true, "epoch": true, "totalEpochs": true,
	"step": true, "totalSteps": true, "loss": true,
	"accuracy": true, "level": true, "message": true,
	"path": true, "finalLoss": true, "finalAccuracy": true,
	"duration": true,
}

func decodeEvent(line []byte) (*wireEvent, error) {
	var e wireEvent
	if err := json.Unmarshal(line, &e); err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}

	for key, value := range raw {
		if knownEventFields[key] {
			continue
		}

		var number float64
		if err := json.Unmarshal(value, &number); err != nil {
			continue
		}

		if e.Extra == nil {
			e.Extra = make(map[string]float64)
		}
		e.Extra[key] = number
	}

	return &e, nil
}

type wireCommand struct {
	Command string `json:"command"`
}

func encodeCommand(command string) ([]byte, error) {
	buf, err := json.Marshal(wireCommand{Command: command})
	if err != nil {
		return nil, err
	}

	return append(buf, '\n'), nil
}
