package run

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/trainyard-cloud/trainyard/internal/lifecycle"
)

// Delete removes a run, its metrics, logs, and artifacts. An active
// run is cancelled first.
func (ctrl *Controller) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	if err := ctrl.lifecycle.DeleteRun(ctx, id); err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			return echo.ErrNotFound
		}
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.NoContent(http.StatusNoContent)
}
