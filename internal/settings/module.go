package settings

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/config"
	"github.com/elskow/scribe/internal/database"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(manager *database.Manager) *Store {
					return NewStore(manager.DB())
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, store *Store, rdb *redis.Client, writer *kafka.Writer, log *zap.Logger) Provider {
					var announcer Announcer
					if writer != nil {
						announcer = NewKafkaAnnouncer(writer, config.Kafka.SettingsTopic)
					}
					return NewCachedProvider(store, rdb, config.Redis.SettingsTTL, announcer, log)
				},
			),
		),
		fx.Invoke(registerHooks),
	)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	config *config.AppConfig,
	provider Provider,
	logger *zap.Logger,
) {
	if !config.Kafka.Enabled {
		return
	}

	listener := NewListener(
		NewKafkaReader(config.Kafka.Brokers, config.Kafka.SettingsTopic, config.Kafka.GroupID),
		provider,
		logger,
	)

	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)

	lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := listener.Run(ctx); err != nil {
					logger.Error("settings listener stopped", zap.Error(err))
				}
			}()
			logger.Info("Listening for settings changes", zap.String("topic", config.Kafka.SettingsTopic))
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			wg.Wait()
			return listener.Close()
		},
	})
}
