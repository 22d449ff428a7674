package run

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func (ctrl *Controller) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	run, ok := ctrl.registry.Get(id)
	if !ok {
		return echo.ErrNotFound
	}

	return c.JSON(http.StatusOK, run)
}
