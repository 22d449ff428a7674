package trainspec

import "testing"

var example1 = `
$schema: https://yourorg.io/schemas/trainingrun.v1.json
apiVersion: v1
kind: TrainingRun
metadata:
  name: yolov8n-coco-baseline
  experiment: detection-sweep
  labels:
    team: vision
training:
  epochs: 100
  batchSize: 16
  learningRate: 0.01
  dataset: /data/coco128/data.yaml
  outputDir: /data/runs/baseline
  artifactPatterns:
    - "**/*.pt"
    - "**/*.onnx"
model:
  name: yolov8n
  architecture: yolov8
`

var example2 = `
apiVersion: v1
kind: TrainingRun
metadata:
  name: quick-smoke
model:
  name: mlp-tiny
  architecture: mlp
training:
  epochs: 3
`

func TestParseValidDocuments(t *testing.T) {
	docs := []string{example1, example2}

	for idx, src := range docs {
		doc, err := Parse([]byte(src))
		if err != nil {
			t.Fatalf("example %d parse error: %v", idx+1, err)
		}

		if doc.Kind != KindTrainingRun {
			t.Fatalf("example %d unexpected kind: %s", idx+1, doc.Kind)
		}

		// Ensure defaults are set when omitted.
		if doc.Training.BatchSize <= 0 {
			t.Fatalf("example %d batch size not defaulted", idx+1)
		}
		if doc.Training.LearningRate <= 0 {
			t.Fatalf("example %d learning rate not defaulted", idx+1)
		}
	}
}

func TestRunConfigConversion(t *testing.T) {
	doc, err := Parse([]byte(example1))
	if err != nil {
		t.Fatal(err)
	}

	cfg := doc.RunConfig()
	if cfg.TotalEpochs != 100 || cfg.BatchSize != 16 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Architecture != "yolov8" {
		t.Fatalf("unexpected architecture: %s", cfg.Architecture)
	}
	if len(cfg.ArtifactPatterns) != 2 {
		t.Fatalf("artifact patterns not carried: %v", cfg.ArtifactPatterns)
	}
}

func TestParseInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"bad version": `apiVersion: v2
kind: TrainingRun
metadata:
  name: test
model: {name: m, architecture: mlp}
training: {epochs: 1}
`,
		"bad kind": `apiVersion: v1
kind: Job
metadata:
  name: test
model: {name: m, architecture: mlp}
training: {epochs: 1}
`,
		"missing name": `apiVersion: v1
kind: TrainingRun
metadata: {}
model: {name: m, architecture: mlp}
training: {epochs: 1}
`,
		"missing architecture": `apiVersion: v1
kind: TrainingRun
metadata:
  name: test
model: {name: m}
training: {epochs: 1}
`,
		"zero epochs": `apiVersion: v1
kind: TrainingRun
metadata:
  name: test
model: {name: m, architecture: mlp}
training: {epochs: 0}
`,
		"negative learning rate": `apiVersion: v1
kind: TrainingRun
metadata:
  name: test
model: {name: m, architecture: mlp}
training: {epochs: 1, learningRate: -0.5}
`,
		"empty artifact pattern": `apiVersion: v1
kind: TrainingRun
metadata:
  name: test
model: {name: m, architecture: mlp}
training:
  epochs: 1
  artifactPatterns: [""]
`,
	}

	for name, src := range cases {
		if _, err := Parse([]byte(src)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
