package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the pending store migrations",
		RunE: withPersistence(app, func(cmd *cobra.Command, args []string) error {
			return app.Migrate(cmd.Context())
		}),
	}
}
