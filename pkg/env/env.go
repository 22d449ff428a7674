package env

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/trainyard-cloud/trainyard/pkg/log"
)

var variables = new(Environment)

// Process the environment variables set for trainyard.
func Process() error {
	if err := envconfig.Process("trainyard", variables); err != nil {
		return errors.Wrap(err, "failed to process environment variables")
	}

	// set the log level
	if err := log.SetLevel(variables.LogLevel); err != nil {
		return errors.Wrap(err, "failed to set log level")
	}

	return nil
}

// Variables returns the processed environment variables.
func Variables() Environment {
	return *variables
}

// Environment defines the environment variables used
// by trainyard.
type Environment struct {
	LogLevel              string `default:"info"`
	Port                  int    `default:"8080"`
	DataDir               string `default:"/var/lib/trainyard"`
	DBPath                string `default:""` // defaults to <DataDir>/trainyard.db
	ArtifactRetentionDays int    `default:"30"`
	GCSchedule            string `default:"@daily"`
	MaxConcurrentRuns     int    `default:"2"`
	EnginePython          string `default:"python3"`
	EngineScript          string `default:""`
}

// DatabasePath resolves the database file location, falling
// back to the data directory when DBPath is unset.
func (e Environment) DatabasePath() string {
	if e.DBPath != "" {
		return e.DBPath
	}
	return e.DataDir + "/trainyard.db"
}

// ArtifactDir is the root of the content-addressed blob tree.
func (e Environment) ArtifactDir() string {
	return e.DataDir + "/artifacts"
}
