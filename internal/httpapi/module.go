package httpapi

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/auth"
	"github.com/elskow/scribe/internal/config"
	"github.com/elskow/scribe/internal/database"
	"github.com/elskow/scribe/internal/metrics"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(config *config.AppConfig, svc *auth.Service, authn *auth.AuthMiddleware, log *zap.Logger) *Handler {
					return NewHandler(svc, authn, HandlerConfig{
						TrustProxy:    config.HTTP.TrustProxy,
						SecureCookies: config.HTTP.SecureCookies,
						DeviceCookie:  config.TrustedDevice.CookieName,
					}, log.Named("http"))
				},
			),
			fx.Annotate(
				func(
					config *config.AppConfig,
					h *Handler,
					manager *database.Manager,
					reg *prometheus.Registry,
					log *zap.Logger,
				) *Server {
					opts := RouterOptions{Health: manager.Ping}
					if config.Metrics.Enabled {
						opts.Metrics = metrics.Handler(reg)
						opts.MetricsPath = config.Metrics.Path
					}
					return NewServer(&config.HTTP, NewRouter(h, opts, log.Named("http")), log.Named("http"))
				},
			),
		),
		fx.Invoke(registerHooks),
	)
}

func registerHooks(lifecycle fx.Lifecycle, srv *Server, log *zap.Logger) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lis, err := srv.Listen()
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(lis); err != nil {
					log.Error("HTTP server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
