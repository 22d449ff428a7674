package run

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/trainyard-cloud/trainyard/internal/models"
)

// Logs returns a run's log entries oldest first. Optional filters:
// level, limit.
func (ctrl *Controller) Logs(c echo.Context) error {
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
		Order("timestamp ASC, id ASC")

	if level := c.QueryParam("level"); level != "" {
		query = query.Where("level = ?", level)
	}

	if limitParam := c.QueryParam("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit <= 0 {
			return echo.ErrBadRequest
		}
		query = query.Limit(limit)
	}

	var entries []*models.LogEntry
	if err := query.Find(&entries).Error; err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, entries)
}
