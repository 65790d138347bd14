package mailer

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/config"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(config *config.AppConfig, log *zap.Logger) Sender {
					if !config.Email.Enabled {
						return NewDisabled(log)
					}
					return NewSMTPMailer(&config.Email, log)
				},
			),
		),
	)
}
