package run

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/trainyard-cloud/trainyard/internal/models"
)

// List serves the run collection from the in-memory registry,
// newest first. Optional filters: status, model_id, experiment_id.
func (ctrl *Controller) List(c echo.Context) error {
	if status := c.QueryParam("status"); status != "" {
		return c.JSON(http.StatusOK, ctrl.registry.ByStatus(models.RunStatus(status)))
	}

	if modelParam := c.QueryParam("model_id"); modelParam != "" {
		id, err := uuid.Parse(modelParam)
		if err != nil {
			return echo.ErrBadRequest.SetInternal(err)
		}
		return c.JSON(http.StatusOK, ctrl.registry.ByModel(id))
	}

	if expParam := c.QueryParam("experiment_id"); expParam != "" {
		id, err := uuid.Parse(expParam)
		if err != nil {
			return echo.ErrBadRequest.SetInternal(err)
		}
		return c.JSON(http.StatusOK, ctrl.registry.ByExperiment(id))
	}

	return c.JSON(http.StatusOK, ctrl.registry.All())
}
