package main

import (
	"context"
	"time"

	"github.com/goliatone/go-auth-state/web"
	"github.com/spf13/cobra"
)

func newServeCmd(app *App) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: withPersistence(app, func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := app.GetLogger("serve")

			if migrate {
				if err := app.Migrate(ctx); err != nil {
					return err
				}
			}

			cfg := app.Config()
			id := cfg.GetIdentity()

			srv, err := web.NewApp(cfg.GetSession(), app.ScopeFactory(), app.logger,
				web.WithControllerClaimTypes(id.GetClaimTypes()),
				web.WithControllerRevalidationInterval(id.GetRevalidationInterval()),
				web.WithControllerActivitySink(app.ActivitySink()),
			)
			if err != nil {
				return err
			}

			addr := cfg.GetServer().GetAddr()
			errc := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", addr)
				errc <- srv.Serve(addr)
			}()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			go func() {
				WaitExitSignal(ctx)
				cancel()
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			return srv.WrappedRouter().ShutdownWithTimeout(10 * time.Second)
		}),
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply pending migrations before serving")

	return cmd
}
