package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "authstated",
		Short: "Authentication state hand-off server",
		Long: `authstated validates session tokens, persists a user snapshot into each
rendered page and revalidates signed in principals against the user store.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			WithLogger(app)
			return WithConfig(cmd.Context(), app)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	root.PersistentFlags().BoolVar(&app.printConfig, "print-config", false, "Print the loaded configuration")

	root.AddCommand(
		newServeCmd(app),
		newMigrateCmd(app),
		newUsersCmd(app),
		newInspectCmd(app),
	)

	return root
}

// withPersistence opens the database before a command runs
func withPersistence(app *App, run func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := WithPersistence(cmd.Context(), app); err != nil {
			return err
		}
		return run(cmd, args)
	}
}
