package rest

import (
	"github.com/labstack/echo/v4"
	artifactctrl "github.com/trainyard-cloud/trainyard/api/rest/controller/artifact"
	eventctrl "github.com/trainyard-cloud/trainyard/api/rest/controller/event"
	runctrl "github.com/trainyard-cloud/trainyard/api/rest/controller/run"
	"github.com/trainyard-cloud/trainyard/internal/artifact"
	"github.com/trainyard-cloud/trainyard/internal/event"
	"github.com/trainyard-cloud/trainyard/internal/lifecycle"
	"github.com/trainyard-cloud/trainyard/internal/registry"
	"github.com/trainyard-cloud/trainyard/pkg/db"
)

// Services carries the collaborators the REST controllers need.
type Services struct {
	Lifecycle *lifecycle.Controller
	Registry  *registry.Registry
	Artifacts *artifact.Store
	Store     *db.Store
	Bus       event.Bus
}

// Bind the REST endpoints to the versioned endpoint group.
func Bind(group *echo.Group, svc *Services) {
	// runs
	{
		runs := runctrl.New(svc.Lifecycle, svc.Registry, svc.Store)
		group.GET("/runs", runs.List)
		group.GET("/runs/:id", runs.Get)
		group.POST("/runs", runs.Post)
		group.POST("/runs/:id/pause", runs.Pause)
		group.POST("/runs/:id/resume", runs.Resume)
		group.POST("/runs/:id/cancel", runs.Cancel)
		group.DELETE("/runs/:id", runs.Delete)
		group.GET("/runs/:id/logs", runs.Logs)
		group.GET("/runs/:id/metrics", runs.Metrics)
	}

	// artifacts
	{
		artifacts := artifactctrl.New(svc.Artifacts)
		group.GET("/artifacts/stats", artifacts.Stats)
		group.GET("/artifacts/:digest", artifacts.Get)
	}

	// events
	{
		events := eventctrl.New(svc.Bus)
		group.GET("/events", events.Stream)
	}
}
