// Package trainspec parses the YAML documents used to submit
// training runs from files or the API.
package trainspec

import (
	"fmt"
	"strings"

	"github.com/trainyard-cloud/trainyard/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	APIVersionV1    = "v1"
	KindTrainingRun = "TrainingRun"

	defaultBatchSize    = 32
	defaultLearningRate = 0.001
)

// Document models the root training-run document.
type Document struct {
	Schema     string   `yaml:"$schema,omitempty" json:"$schema,omitempty"`
	APIVersion string   `yaml:"apiVersion" json:"apiVersion"`
	Kind       string   `yaml:"kind" json:"kind"`
	Metadata   Metadata `yaml:"metadata" json:"metadata"`
	Model      Model    `yaml:"model" json:"model"`
	Training   Training `yaml:"training" json:"training"`
}

// Metadata contains descriptive data for the run.
type Metadata struct {
	Name       string            `yaml:"name" json:"name"`
	Experiment string            `yaml:"experiment,omitempty" json:"experiment,omitempty"`
	Labels     map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Model names the model the run trains.
type Model struct {
	Name         string `yaml:"name" json:"name"`
	Architecture string `yaml:"architecture" json:"architecture"`
}

// Training defines the hyperparameters and input/output paths.
type Training struct {
	Epochs           int      `yaml:"epochs" json:"epochs"`
	BatchSize        int      `yaml:"batchSize,omitempty" json:"batchSize,omitempty"`
	LearningRate     float64  `yaml:"learningRate,omitempty" json:"learningRate,omitempty"`
	Dataset          string   `yaml:"dataset,omitempty" json:"dataset,omitempty"`
	OutputDir        string   `yaml:"outputDir,omitempty" json:"outputDir,omitempty"`
	ArtifactPatterns []string `yaml:"artifactPatterns,omitempty" json:"artifactPatterns,omitempty"`
}

// UnmarshalYAML sets defaults while deserialising the training block.
func (t *Training) UnmarshalYAML(value *yaml.Node) error {
	type rawTraining Training
	rt := rawTraining{
		BatchSize:    defaultBatchSize,
		LearningRate: defaultLearningRate,
	}
	if err := value.Decode(&rt); err != nil {
		return err
	}
	*t = Training(rt)
	if t.BatchSize == 0 {
		t.BatchSize = defaultBatchSize
	}
	if t.LearningRate == 0 {
		t.LearningRate = defaultLearningRate
	}
	return nil
}

// Parse parses YAML bytes into a validated Document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate performs semantic validation on the document.
func (d *Document) Validate() error {
	if d.APIVersion != APIVersionV1 {
		return fmt.Errorf("unsupported apiVersion: %s", d.APIVersion)
	}
	if d.Kind != KindTrainingRun {
		return fmt.Errorf("unsupported kind: %s", d.Kind)
	}
	if strings.TrimSpace(d.Metadata.Name) == "" {
		return fmt.Errorf("metadata.name is required")
	}
	if strings.TrimSpace(d.Model.Name) == "" {
		return fmt.Errorf("model.name is required")
	}
	if strings.TrimSpace(d.Model.Architecture) == "" {
		return fmt.Errorf("model.architecture is required")
	}
	if d.Training.Epochs <= 0 {
		return fmt.Errorf("training.epochs must be positive")
	}
	if d.Training.BatchSize <= 0 {
		return fmt.Errorf("training.batchSize must be positive")
	}
	if d.Training.LearningRate <= 0 {
		return fmt.Errorf("training.learningRate must be positive")
	}
	for i, pattern := range d.Training.ArtifactPatterns {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("training.artifactPatterns[%d] is empty", i)
		}
	}
	return nil
}

// RunConfig converts the document into the persisted run config.
func (d *Document) RunConfig() models.RunConfig {
	return models.RunConfig{
		SchemaVersion:    1,
		TotalEpochs:      d.Training.Epochs,
		BatchSize:        d.Training.BatchSize,
		LearningRate:     d.Training.LearningRate,
		Architecture:     d.Model.Architecture,
		DatasetPath:      d.Training.Dataset,
		OutputDir:        d.Training.OutputDir,
		ArtifactPatterns: d.Training.ArtifactPatterns,
	}
}
