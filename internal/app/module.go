package app

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/auth"
	"github.com/elskow/scribe/internal/database"
	"github.com/elskow/scribe/internal/events"
	"github.com/elskow/scribe/internal/httpapi"
	"github.com/elskow/scribe/internal/mailer"
	"github.com/elskow/scribe/internal/metrics"
	"github.com/elskow/scribe/internal/migration"
	"github.com/elskow/scribe/internal/server"
	"github.com/elskow/scribe/internal/settings"
	"github.com/elskow/scribe/internal/token"
)

// Module combines all application modules
func Module() fx.Option {
	return fx.Options(
		// Logger
		fx.Provide(newLogger),

		// Configuration
		fx.Provide(server.LoadConfig),

		metrics.Module(),

		// Storage; hooks run in this order, so the schema is current
		// before anything reads it.
		database.Module(),
		migration.Module(),

		events.Module(),
		settings.Module(),
		mailer.Module(),

		// Auth Module
		auth.NewModule(),

		// Transports
		httpapi.Module(),
		fx.Provide(
			fx.Annotate(
				func(tokens *token.Manager) *server.Introspection {
					return server.NewIntrospection(tokens)
				},
			),
			server.NewServer,
		),

		// Start the server
		fx.Invoke(registerHooks),
	)
}

func newLogger() (*zap.Logger, error) {
	env := os.Getenv("APP_ENV")
	return server.NewLogger(env)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	srv *server.Server,
	log *zap.Logger,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("failed to start server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server...")
			srv.Stop()
			return nil
		},
	})
}
