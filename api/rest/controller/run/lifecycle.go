package run

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/trainyard-cloud/trainyard/internal/lifecycle"
)

// Pause suspends a running session in place.
func (ctrl *Controller) Pause(c echo.Context) error {
	return ctrl.transition(c, ctrl.lifecycle.Pause)
}

// Resume continues a paused run, requeueing it when its engine
// session did not survive.
func (ctrl *Controller) Resume(c echo.Context) error {
	return ctrl.transition(c, ctrl.lifecycle.Resume)
}

// Cancel stops a queued, running, or paused run.
func (ctrl *Controller) Cancel(c echo.Context) error {
	return ctrl.transition(c, ctrl.lifecycle.Cancel)
}

func (ctrl *Controller) transition(
	c echo.Context,
	op func(context.Context, uuid.UUID) error,
) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	if err := op(ctx, id); err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrNotFound):
			return echo.ErrNotFound
		case errors.Is(err, lifecycle.ErrInvalidTransition),
			errors.Is(err, lifecycle.ErrNoActiveSession):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.ErrInternalServerError.SetInternal(err)
		}
	}

	run, ok := ctrl.registry.Get(id)
	if !ok {
		return echo.ErrNotFound
	}

	return c.JSON(http.StatusAccepted, run)
}
