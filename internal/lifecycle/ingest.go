package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/trainyard-cloud/trainyard/internal/models"
	"github.com/trainyard-cloud/trainyard/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ingestOutputs walks the run's output directory with the
// configured glob patterns and stores every match. Ingest
// failures degrade the artifact, not the run: they land on the
// run's log and the walk continues.
func (c *Controller) ingestOutputs(ctx context.Context, run *models.TrainingRun) {
	outputDir := run.Config.OutputDir
	if outputDir == "" {
		return
	}

	if _, err := os.Stat(outputDir); os.IsNotExist(err) {
		return
	}

	root := os.DirFS(outputDir)
	seen := make(map[string]bool)

	for _, pattern := range run.Config.ArtifactPatterns {
		matches, err := doublestar.Glob(root, pattern)
		if err != nil {
			c.logOntoRun(ctx, run.ID, models.LogLevelWarning,
				fmt.Sprintf("bad artifact pattern %q: %v", pattern, err))
			continue
		}

		for _, match := range matches {
			if seen[match] {
				continue
			}
			seen[match] = true

			path := filepath.Join(outputDir, match)

			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}

			digest, err := c.artifacts.StoreFile(ctx, path, artifactTypeFor(match), &run.ID)
			if err != nil {
				c.logOntoRun(ctx, run.ID, models.LogLevelError,
					fmt.Sprintf("artifact ingest failed for %s: %v", match, err))
				continue
			}

			log.Debug("artifact ingested", "run_id", run.ID, "path", match, "digest", digest)
		}
	}
}

func artifactTypeFor(path string) models.ArtifactType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pt", ".ckpt", ".pth":
		return models.ArtifactTypeCheckpoint
	case ".onnx", ".mlmodel", ".safetensors":
		return models.ArtifactTypeModel
	case ".png", ".jpg", ".svg":
		return models.ArtifactTypePlot
	case ".log", ".txt":
		return models.ArtifactTypeLog
	default:
		return models.ArtifactTypeData
	}
}

// upsertMetric writes a metric observation, overwriting any prior
// value at the same (run, epoch, step, name) coordinate.
func upsertMetric(tx *gorm.DB, m *models.Metric) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "run_id"}, {Name: "epoch"}, {Name: "step"}, {Name: "name"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"value", "timestamp"}),
	}).Create(m).Error
}
