package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "scheduler",
		Short: "Recurring item scheduler",
		Long: `scheduler stores events and reminders, projects their recurrences
into an agenda and delivers reminder alerts.

Without a subcommand it runs the HTTP API.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newProjectCmd(&configPath),
		newExportCmd(&configPath),
	)
	return root
}
