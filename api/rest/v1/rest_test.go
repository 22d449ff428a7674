package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/trainyard-cloud/trainyard/internal/artifact"
	"github.com/trainyard-cloud/trainyard/internal/engine"
	"github.com/trainyard-cloud/trainyard/internal/event"
	"github.com/trainyard-cloud/trainyard/internal/lifecycle"
	"github.com/trainyard-cloud/trainyard/internal/models"
	"github.com/trainyard-cloud/trainyard/internal/registry"
	"github.com/trainyard-cloud/trainyard/pkg/db"
	"gorm.io/gorm"
)

type fixture struct {
	e        *echo.Echo
	store    *db.Store
	registry *registry.Registry
	svc      *Services
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dataDir := t.TempDir()

	store, err := db.Open(filepath.Join(dataDir, "trainyard.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	conn, err := store.Conn()
	require.NoError(t, err)

	bus := event.New()
	reg := registry.New()
	artifacts := artifact.NewStore(conn, filepath.Join(dataDir, "artifacts"), bus)
	controller := lifecycle.New(store, artifacts, engine.NewFake(), reg, bus, lifecycle.Config{
		DataDir:           dataDir,
		MaxConcurrentRuns: 2,
	})

	svc := &Services{
		Lifecycle: controller,
		Registry:  reg,
		Artifacts: artifacts,
		Store:     store,
		Bus:       bus,
	}

	e := echo.New()
	Bind(e.Group("/v1"), svc)

	return &fixture{e: e, store: store, registry: reg, svc: svc}
}

func (f *fixture) conn(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := f.store.Conn()
	require.NoError(t, err)
	return conn
}

func (f *fixture) seedModel(t *testing.T) *models.Model {
	t.Helper()

	m := &models.Model{ID: uuid.New(), Name: "mnist-mlp", Architecture: "mlp"}
	require.NoError(t, f.conn(t).Create(m).Error)
	return m
}

func (f *fixture) do(method, target, contentType, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, contentType)
	}

	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) waitStatus(t *testing.T, id uuid.UUID, status models.RunStatus) {
	t.Helper()

	require.Eventually(t, func() bool {
		run, ok := f.registry.Get(id)
		return ok && run.Status == status
	}, 5*time.Second, 5*time.Millisecond)
}

func TestPostRunJSON(t *testing.T) {
	f := newFixture(t)
	model := f.seedModel(t)

	body, err := json.Marshal(map[string]any{
		"name":     "baseline",
		"model_id": model.ID,
		"config": map[string]any{
			"total_epochs":  5,
			"batch_size":    32,
			"learning_rate": 0.001,
			"architecture":  "mlp",
		},
	})
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/v1/runs", echo.MIMEApplicationJSON, string(body))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var run models.TrainingRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	require.Equal(t, models.RunStatusQueued, run.Status)

	get := f.do(http.MethodGet, "/v1/runs/"+run.ID.String(), "", "")
	require.Equal(t, http.StatusOK, get.Code)

	list := f.do(http.MethodGet, "/v1/runs", "", "")
	require.Equal(t, http.StatusOK, list.Code)

	var runs []*models.TrainingRun
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
}

func TestPostRunValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/runs", echo.MIMEApplicationJSON,
		`{"name": "no-model", "config": {"total_epochs": 1, "batch_size": 1, "learning_rate": 0.1}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostRunYAML(t *testing.T) {
	f := newFixture(t)

	doc := `
apiVersion: v1
kind: TrainingRun
metadata:
  name: yolo-smoke
model:
  name: yolov8n
  architecture: yolov8
training:
  epochs: 3
`
	rec := f.do(http.MethodPost, "/v1/runs", "application/yaml", doc)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// the model was created on first submission, carrying its name
	var model models.Model
	require.NoError(t, f.conn(t).First(&model, "name = ?", "yolov8n").Error)
	require.Equal(t, "yolov8n", model.Name)
	require.Equal(t, "yolov8", model.Architecture)

	// a second submission reuses the model instead of creating
	// another row
	rec = f.do(http.MethodPost, "/v1/runs", "application/yaml", doc)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var count int64
	require.NoError(t, f.conn(t).Model(&models.Model{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	rec = f.do(http.MethodPost, "/v1/runs", "application/yaml", "kind: Job")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPauseResumeCancelOverREST(t *testing.T) {
	f := newFixture(t)
	model := f.seedModel(t)

	run, err := f.svc.Lifecycle.Start(context.Background(), &lifecycle.StartRequest{
		Name:    "interactive",
		ModelID: model.ID,
		Config: models.RunConfig{
			TotalEpochs:  5,
			BatchSize:    8,
			LearningRate: 0.01,
			Architecture: "mlp",
		},
	})
	require.NoError(t, err)
	f.waitStatus(t, run.ID, models.RunStatusRunning)

	rec := f.do(http.MethodPost, "/v1/runs/"+run.ID.String()+"/pause", "", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.waitStatus(t, run.ID, models.RunStatusPaused)

	rec = f.do(http.MethodPost, "/v1/runs/"+run.ID.String()+"/resume", "", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.waitStatus(t, run.ID, models.RunStatusRunning)

	// pausing an unknown run is a 404
	rec = f.do(http.MethodPost, "/v1/runs/"+uuid.NewString()+"/pause", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/v1/runs/"+run.ID.String()+"/cancel", "", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.waitStatus(t, run.ID, models.RunStatusCancelled)

	// cancelled is terminal, pause now conflicts
	rec = f.do(http.MethodPost, "/v1/runs/"+run.ID.String()+"/pause", "", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodDelete, "/v1/runs/"+run.ID.String(), "", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/v1/runs/"+run.ID.String(), "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArtifactEndpoints(t *testing.T) {
	f := newFixture(t)

	digest, err := f.svc.Artifacts.Store(context.Background(), []byte("weights"), models.ArtifactTypeModel, "best.pt", nil)
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/v1/artifacts/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats artifact.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, int64(1), stats.Count)

	rec = f.do(http.MethodGet, "/v1/artifacts/"+digest, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "weights", rec.Body.String())

	rec = f.do(http.MethodGet, "/v1/artifacts/"+artifact.Digest([]byte("absent")), "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
