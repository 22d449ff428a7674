// Package janitor runs scheduled maintenance against the artifact
// store. Its only job today is garbage collection of orphaned
// artifacts past the retention window.
package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron"
	"github.com/trainyard-cloud/trainyard/internal/artifact"
	"github.com/trainyard-cloud/trainyard/pkg/log"
)

// Janitor fires artifact garbage collection on a cron schedule.
type Janitor struct {
	artifacts *artifact.Store
	schedule  cron.Schedule
	retention time.Duration
}

// New parses the cron expression and builds a Janitor retaining
// orphaned artifacts for retentionDays before collection.
func New(artifacts *artifact.Store, expression string, retentionDays int) (*Janitor, error) {
	parser := cron.NewParser(
		cron.Minute |
			cron.Hour |
			cron.Dom |
			cron.Month |
			cron.Dow |
			cron.Descriptor,
	)

	sched, err := parser.Parse(expression)
	if err != nil {
		return nil, err
	}

	return &Janitor{
		artifacts: artifacts,
		schedule:  sched,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}, nil
}

// Listen blocks, firing a collection at every scheduled tick until
// the context is cancelled.
func (j *Janitor) Listen(ctx context.Context) {
	log.Info("janitor listening",
		"retention", j.retention,
	)

	for {
		select {
		case <-time.After(time.Until(j.schedule.Next(time.Now()))):
			if err := j.Fire(ctx); err != nil {
				log.Error("janitor fire failure", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Fire runs one collection pass immediately.
func (j *Janitor) Fire(ctx context.Context) error {
	removed, err := j.artifacts.GarbageCollect(ctx, j.retention)
	if err != nil {
		return err
	}

	log.Info("janitor collected artifacts", "count", removed)

	return nil
}
