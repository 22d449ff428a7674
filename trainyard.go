package main

import (
	"github.com/trainyard-cloud/trainyard/cmd"
	"github.com/trainyard-cloud/trainyard/pkg/env"
	"github.com/trainyard-cloud/trainyard/pkg/log"
)

func main() {
	if err := env.Process(); err != nil {
		log.Fatal("environment failure", "error", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal("trainyard failure", "error", err)
	}
}
