package run

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/trainyard-cloud/trainyard/internal/lifecycle"
	"github.com/trainyard-cloud/trainyard/internal/models"
	"github.com/trainyard-cloud/trainyard/pkg/trainspec"
	"gorm.io/gorm"
)

// PostRequest is the JSON submission body. YAML submissions use the
// trainspec document format instead.
type PostRequest struct {
	Name         string           `json:"name"`
	ModelID      uuid.UUID        `json:"model_id"`
	ExperimentID *uuid.UUID       `json:"experiment_id,omitempty"`
	Config       models.RunConfig `json:"config"`
}

// Post starts a run and returns its queued snapshot with 202. The
// engine launch itself is asynchronous.
func (ctrl *Controller) Post(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := ctrl.decodeStart(c)
	if err != nil {
		return err
	}

	run, err := ctrl.lifecycle.Start(ctx, req)
	if err != nil {
		if errors.Is(err, lifecycle.ErrInvalidRequest) {
			return echo.ErrBadRequest.SetInternal(err)
		}
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusAccepted, run)
}

func (ctrl *Controller) decodeStart(c echo.Context) (*lifecycle.StartRequest, error) {
	contentType := c.Request().Header.Get(echo.HeaderContentType)

	if strings.Contains(contentType, "yaml") {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return nil, echo.ErrBadRequest.SetInternal(err)
		}

		doc, err := trainspec.Parse(body)
		if err != nil {
			return nil, echo.ErrBadRequest.SetInternal(err)
		}

		return ctrl.fromDocument(c, doc)
	}

	var req PostRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.ErrBadRequest.SetInternal(err)
	}

	return &lifecycle.StartRequest{
		Name:         req.Name,
		ModelID:      req.ModelID,
		ExperimentID: req.ExperimentID,
		Config:       req.Config,
	}, nil
}

// fromDocument resolves the document's model by name, creating it on
// first submission. An experiment is attached only when one with the
// given name already exists.
func (ctrl *Controller) fromDocument(c echo.Context, doc *trainspec.Document) (*lifecycle.StartRequest, error) {
	conn, err := ctrl.store.Conn()
	if err != nil {
		return nil, echo.ErrInternalServerError.SetInternal(err)
	}

	ctx := c.Request().Context()

	var model models.Model
	err = conn.WithContext(ctx).
		Where("name = ?", doc.Model.Name).
		Attrs(models.Model{
			ID:           uuid.New(),
			Name:         doc.Model.Name,
			Architecture: doc.Model.Architecture,
			CreatedAt:    time.Now().UTC(),
		}).
		FirstOrCreate(&model).Error
	if err != nil {
		return nil, echo.ErrInternalServerError.SetInternal(err)
	}

	req := &lifecycle.StartRequest{
		Name:    doc.Metadata.Name,
		ModelID: model.ID,
		Config:  doc.RunConfig(),
	}

	if doc.Metadata.Experiment != "" {
		var experiment models.Experiment
		err = conn.WithContext(ctx).
			Where("name = ?", doc.Metadata.Experiment).
			First(&experiment).Error
		switch {
		case err == nil:
			req.ExperimentID = &experiment.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return nil, echo.ErrInternalServerError.SetInternal(err)
		}
	}

	return req, nil
}
