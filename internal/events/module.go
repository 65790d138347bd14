package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/config"
	"github.com/elskow/scribe/internal/metrics"
)

// Module provides the shared kafka writer (nil when kafka is disabled) and
// the Publisher every security event goes through.
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(config *config.AppConfig) *kafka.Writer {
					if !config.Kafka.Enabled || len(config.Kafka.Brokers) == 0 {
						return nil
					}
					return NewKafkaWriter(config.Kafka.Brokers)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, writer *kafka.Writer, log *zap.Logger) *Dispatcher {
					var sink Sink = NewLogSink(log)
					if writer != nil {
						sink = NewKafkaSink(writer, config.Kafka.EventsTopic)
					}
					return NewDispatcher(sink, config.Kafka.BufferSize, log)
				},
			),
			fx.Annotate(
				func(d *Dispatcher) Publisher { return d },
			),
		),
		fx.Invoke(registerHooks),
	)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	dispatcher *Dispatcher,
	writer *kafka.Writer,
	collector *metrics.Collector,
	registerer prometheus.Registerer,
	logger *zap.Logger,
) {
	collector.TrackDroppedEvents(registerer, dispatcher.Dropped)

	lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("Flushing security events")
			dispatcher.Close()
			if writer == nil {
				return nil
			}
			return writer.Close()
		},
	})
}
