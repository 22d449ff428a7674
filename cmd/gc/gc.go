package gc

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/trainyard-cloud/trainyard/internal/artifact"
	"github.com/trainyard-cloud/trainyard/pkg/db"
	"github.com/trainyard-cloud/trainyard/pkg/env"
	"github.com/trainyard-cloud/trainyard/pkg/log"
)

const (
	usage   = "gc"
	short   = "Collect expired orphaned artifacts"
	long    = "This command runs one artifact garbage collection pass and exits"
	example = "trainyard gc"
)

var (
	// Cmd is the gc command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Example: example,
		RunE:    run,
	}

	retentionDays int
)

func init() {
	Cmd.Flags().IntVar(&retentionDays, "retention-days", -1,
		"override the retention window (defaults to the environment setting)")
}

func run(cmd *cobra.Command, args []string) error {
	vars := env.Variables()

	store, err := db.Open(vars.DatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return err
	}

	conn, err := store.Conn()
	if err != nil {
		return err
	}

	days := retentionDays
	if days < 0 {
		days = vars.ArtifactRetentionDays
	}

	artifacts := artifact.NewStore(conn, vars.ArtifactDir(), nil)

	removed, err := artifacts.GarbageCollect(
		cmd.Context(),
		time.Duration(days)*24*time.Hour,
	)
	if err != nil {
		return err
	}

	log.Info("garbage collection complete",
		"removed", removed,
		"retention_days", days,
	)

	return nil
}
