package artifact

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/trainyard-cloud/trainyard/internal/artifact"
)

// Controller serves the artifact endpoints.
type Controller struct {
	store *artifact.Store
}

func New(store *artifact.Store) *Controller {
	return &Controller{store: store}
}

// Stats reports the store's artifact count and total size.
func (ctrl *Controller) Stats(c echo.Context) error {
	stats, err := ctrl.store.Stats(c.Request().Context())
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, stats)
}

// Get streams an artifact's content by digest.
func (ctrl *Controller) Get(c echo.Context) error {
	ctx := c.Request().Context()
	digest := c.Param("digest")

	record, err := ctrl.store.Get(ctx, digest)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return echo.ErrNotFound
		}
		return echo.ErrInternalServerError.SetInternal(err)
	}

	content, err := ctrl.store.Retrieve(ctx, digest)
	if err != nil {
		if errors.Is(err, artifact.ErrFileMissing) {
			return echo.NewHTTPError(http.StatusGone, "artifact content missing")
		}
		return echo.ErrInternalServerError.SetInternal(err)
	}

	c.Response().Header().Set(
		echo.HeaderContentDisposition,
		`attachment; filename="`+record.Name+`"`,
	)

	return c.Blob(http.StatusOK, echo.MIMEOctetStream, content)
}
