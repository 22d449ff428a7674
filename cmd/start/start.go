package start

import (
	"context"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/trainyard-cloud/trainyard/api"
	"github.com/trainyard-cloud/trainyard/internal/artifact"
	"github.com/trainyard-cloud/trainyard/internal/engine"
	"github.com/trainyard-cloud/trainyard/internal/event"
	"github.com/trainyard-cloud/trainyard/internal/janitor"
	"github.com/trainyard-cloud/trainyard/internal/lifecycle"
	"github.com/trainyard-cloud/trainyard/internal/models"
	"github.com/trainyard-cloud/trainyard/internal/registry"
	"github.com/trainyard-cloud/trainyard/pkg/db"
	"github.com/trainyard-cloud/trainyard/pkg/env"
	"github.com/trainyard-cloud/trainyard/pkg/log"
	"github.com/trainyard-cloud/trainyard/pkg/trainspec"
	"gorm.io/gorm"
)

const (
	usage   = "start"
	short   = "Start a trainyard daemon"
	long    = "This command starts a trainyard training lifecycle daemon"
	example = "trainyard start"
)

var (
	// Cmd is the start command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		Aliases:    []string{"s"},
		SuggestFor: []string{"launch", "boot", "up", "run", "begin"},
		Example:    example,
		RunE:       start,
	}

	specs []string

	cancel context.CancelFunc
)

func init() {
	Cmd.Flags().StringArrayVar(&specs, "spec", nil,
		"training-spec document to submit at boot (repeatable)")
}

func start(cmd *cobra.Command, args []string) error {
	signalChan := make(chan os.Signal, 1)

	go func() {
		for s := range signalChan {
			switch s {
			case syscall.SIGUSR1:
				log.Info("dumping stack traces due to SIGUSR1 signal")
				if profile := pprof.Lookup("goroutine"); profile != nil {
					if err := profile.WriteTo(os.Stdout, 1); err != nil {
						log.Error("write goroutine profile", "error", err)
					}
				}
			case syscall.SIGINT:
				log.Info("gracefully shutting down due to SIGINT signal")
				shutdown()
				os.Exit(0)
			}
		}
	}()

	signal.Notify(signalChan, syscall.SIGUSR1, syscall.SIGINT)

	var errs = make(chan error)
	ctx, cancelFunc := context.WithCancel(context.Background())
	cancel = cancelFunc

	vars := env.Variables()

	log.Info("opening database", "path", vars.DatabasePath())
	store, err := db.Open(vars.DatabasePath())
	if err != nil {
		log.Fatal("database open failure", "error", err)
	}

	log.Info("migrating database")
	if err := store.Migrate(); err != nil {
		log.Fatal("database migration failure", "error", err)
	}

	recovered, err := lifecycle.Recover(ctx, store)
	if err != nil {
		log.Fatal("startup reconciliation failure", "error", err)
	}
	if recovered > 0 {
		log.Warn("cancelled runs stranded by previous shutdown", "count", recovered)
	}

	conn, err := store.Conn()
	if err != nil {
		log.Fatal("database connection failure", "error", err)
	}

	reg := registry.New()
	if err := reg.WarmUp(ctx, conn); err != nil {
		log.Fatal("registry warm-up failure", "error", err)
	}

	bus := event.New()
	artifacts := artifact.NewStore(conn, vars.ArtifactDir(), bus)

	if vars.EngineScript == "" {
		log.Warn("no engine script configured, run starts will fail until TRAINYARD_ENGINESCRIPT is set")
	}

	controller := lifecycle.New(
		store,
		artifacts,
		engine.NewSubprocess(vars.EnginePython, vars.EngineScript),
		reg,
		bus,
		lifecycle.Config{
			DataDir:           vars.DataDir,
			MaxConcurrentRuns: vars.MaxConcurrentRuns,
		},
	)

	for _, path := range specs {
		if err := submit(ctx, conn, controller, path); err != nil {
			log.Fatal("spec submission failure", "path", path, "error", err)
		}
	}

	j, err := janitor.New(artifacts, vars.GCSchedule, vars.ArtifactRetentionDays)
	if err != nil {
		log.Fatal("janitor configuration failure", "error", err)
	}

	go func() {
		log.Info("launching janitor", "schedule", vars.GCSchedule)
		j.Listen(ctx)
	}()

	go func() {
		log.Info("spinning up api", "port", vars.Port)
		errs <- (&api.Server{
			Lifecycle: controller,
			Registry:  reg,
			Artifacts: artifacts,
			Store:     store,
			Bus:       bus,
			Port:      vars.Port,
		}).Start()
	}()

	defer shutdown()

	return <-errs
}

// submit parses a training-spec document and starts its run,
// creating the named model on first sight.
func submit(
	ctx context.Context,
	conn *gorm.DB,
	controller *lifecycle.Controller,
	path string,
) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	doc, err := trainspec.Parse(body)
	if err != nil {
		return err
	}

	var model models.Model
	err = conn.WithContext(ctx).
		Where("name = ?", doc.Model.Name).
		Attrs(models.Model{
			ID:           uuid.New(),
			Name:         doc.Model.Name,
			Architecture: doc.Model.Architecture,
			CreatedAt:    time.Now().UTC(),
		}).
		FirstOrCreate(&model).Error
	if err != nil {
		return err
	}

	run, err := controller.Start(ctx, &lifecycle.StartRequest{
		Name:    doc.Metadata.Name,
		ModelID: model.ID,
		Config:  doc.RunConfig(),
	})
	if err != nil {
		return err
	}

	log.Info("submitted training run", "id", run.ID, "name", run.Name)

	return nil
}

func shutdown() {
	if cancel != nil {
		cancel()
	}
}
