package models

// All lists every persisted model, in dependency order.
var All = []any{
	&Project{},
	&Experiment{},
	&Model{},
	&TrainingRun{},
	&Metric{},
	&LogEntry{},
	&Artifact{},
}
