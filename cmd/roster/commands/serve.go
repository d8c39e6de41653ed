package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"roster/internal/identity/handler"
	"roster/internal/platform/httpserver"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve athlete lookups, health, and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withApp(cmd, "serve", func(ctx context.Context, app *App) error {
				lookups := handler.New(app.Service, app.Logger)
				srv := httpserver.New(addr, httpserver.NewRouter(healthChecks(app), func(r chi.Router) {
					lookups.Register(r)
				}))

				errc := make(chan error, 1)
				go func() {
					app.Logger.InfoContext(ctx, "serving", "addr", addr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errc <- err
					}
					close(errc)
				}()

				select {
				case err := <-errc:
					return err
				case <-ctx.Done():
				}
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}

func healthChecks(app *App) map[string]httpserver.HealthCheck {
	checks := make(map[string]httpserver.HealthCheck)
	if app.DB != nil {
		checks["postgres"] = app.DB.PingContext
	}
	if app.Redis != nil {
		checks["redis"] = app.Redis.Health
	}
	if app.Kafka != nil {
		checks["kafka"] = app.Kafka.Ping
	}
	return checks
}
