package run

import (
	"github.com/trainyard-cloud/trainyard/internal/lifecycle"
	"github.com/trainyard-cloud/trainyard/internal/registry"
	"github.com/trainyard-cloud/trainyard/pkg/db"
)

// Controller serves the run endpoints.
type Controller struct {
	lifecycle *lifecycle.Controller
	registry  *registry.Registry
	store     *db.Store
}

func New(lc *lifecycle.Controller, reg *registry.Registry, store *db.Store) *Controller {
	return &Controller{lifecycle: lc, registry: reg, store: store}
}
