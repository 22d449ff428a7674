package cmd

import (
	"github.com/spf13/cobra"
	"github.com/trainyard-cloud/trainyard/cmd/gc"
	"github.com/trainyard-cloud/trainyard/cmd/start"
)

var cmds = []*cobra.Command{
	start.Cmd,
	gc.Cmd,
}

// Execute builds the command tree and executes commands.
func Execute() error {
	command := &cobra.Command{
		Use: "trainyard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}

	for _, c := range cmds {
		command.AddCommand(c)
	}

	return command.Execute()
}
