package run

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/trainyard-cloud/trainyard/internal/models"
)

// Metrics returns a run's metric history in coordinate order.
// Optional filter: name (e.g. loss, accuracy).
func (ctrl *Controller) Metrics(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	if _, ok := ctrl.registry.Get(id); !ok {
		return echo.ErrNotFound
	}

	conn, err := ctrl.store.Conn()
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	query := conn.WithContext(ctx).
		Where("run_id = ?", id).
		Order("epoch ASC, step ASC, name ASC")

	if name := c.QueryParam("name"); name != "" {
		query = query.Where("name = ?", name)
	}

	var metrics []*models.Metric
	if err := query.Find(&metrics).Error; err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, metrics)
}
