package api

import (
	"fmt"

	"github.com/labstack/echo/v4"
	rest "github.com/trainyard-cloud/trainyard/api/rest/v1"
	"github.com/trainyard-cloud/trainyard/internal/artifact"
	"github.com/trainyard-cloud/trainyard/internal/event"
	"github.com/trainyard-cloud/trainyard/internal/lifecycle"
	"github.com/trainyard-cloud/trainyard/internal/registry"
	"github.com/trainyard-cloud/trainyard/pkg/db"
)

// Server wires the lifecycle controller and its stores into the
// HTTP surface consumed by the UI.
type Server struct {
	Lifecycle *lifecycle.Controller
	Registry  *registry.Registry
	Artifacts *artifact.Store
	Store     *db.Store
	Bus       event.Bus
	Port      int
}

// Start launches the API and blocks until the listener stops.
func (s *Server) Start() error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// health
	e.GET("/health", Health)

	// REST
	rest.Bind(e.Group("/v1"), &rest.Services{
		Lifecycle: s.Lifecycle,
		Registry:  s.Registry,
		Artifacts: s.Artifacts,
		Store:     s.Store,
		Bus:       s.Bus,
	})

	return e.Start(fmt.Sprintf(":%v", s.Port))
}
