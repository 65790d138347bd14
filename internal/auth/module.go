package auth

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/config"
	"github.com/elskow/scribe/internal/database"
	"github.com/elskow/scribe/internal/events"
	"github.com/elskow/scribe/internal/mailer"
	"github.com/elskow/scribe/internal/metrics"
	"github.com/elskow/scribe/internal/password"
	"github.com/elskow/scribe/internal/settings"
	"github.com/elskow/scribe/internal/token"
)

// NewModule returns the auth module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(config *config.AppConfig) (*token.Manager, error) {
					return token.NewManager(token.Config{
						Secret:       []byte(config.Auth.JWTSecret),
						Issuer:       config.Auth.Issuer,
						AccessTTL:    config.Auth.AccessTokenTTL,
						ChallengeTTL: config.Auth.ChallengeTTL,
					})
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, collector *metrics.Collector) (*password.Pool, error) {
					hasher, err := password.NewHasher(password.Params{
						Memory:      config.Password.Memory,
						Time:        config.Password.Time,
						Parallelism: config.Password.Parallelism,
						SaltLength:  config.Password.SaltLength,
						KeyLength:   config.Password.KeyLength,
					})
					if err != nil {
						return nil, err
					}
					return password.NewPool(hasher, config.Password.Workers, password.WithObserver(collector.ObserveHash)), nil
				},
			),
			fx.Annotate(
				func(manager *database.Manager) Stores {
					return NewStores(manager.DB())
				},
			),
			NewBackground,
			fx.Annotate(
				func(
					config *config.AppConfig,
					log *zap.Logger,
					stores Stores,
					tokens *token.Manager,
					passwords *password.Pool,
					sender mailer.Sender,
					provider settings.Provider,
					publisher events.Publisher,
					collector *metrics.Collector,
					tasks *Background,
				) (*Service, error) {
					return NewService(ConfigFrom(config), Dependencies{
						Stores:    stores,
						Tokens:    tokens,
						Passwords: passwords,
						Mailer:    sender,
						Settings:  provider,
						Events:    publisher,
						Metrics:   collector,
						Tasks:     tasks,
					}, log)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, tokens *token.Manager, provider settings.Provider, log *zap.Logger) *AuthMiddleware {
					return NewAuthMiddleware(tokens, provider, config.Auth.LocalUserID, log)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, stores Stores, log *zap.Logger) *CleanupManager {
					return NewCleanupManager(stores, config.Lockout.AttemptRetention, config.Cleanup.Interval, log)
				},
			),
		),
		fx.Invoke(registerHooks),
	)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	cleanup *CleanupManager,
	tasks *Background,
	logger *zap.Logger,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			cleanup.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cleanup.Stop()
			logger.Info("Draining background auth tasks")
			return tasks.Shutdown(ctx)
		},
	})
}
