package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const listenerBackoff = time.Second

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
}

// KafkaAnnouncer publishes the new settings on the settings topic.
type KafkaAnnouncer struct {
	writer MessageWriter
	topic  string
}

func NewKafkaAnnouncer(writer MessageWriter, topic string) *KafkaAnnouncer {
	return &KafkaAnnouncer{writer: writer, topic: topic}
}

func (a *KafkaAnnouncer) Announce(ctx context.Context, s Settings) error {
	value, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := a.writer.WriteMessages(ctx, kafka.Message{Topic: a.topic, Key: []byte(CacheKey), Value: value}); err != nil {
		return fmt.Errorf("failed to announce settings: %w", err)
	}
	return nil
}

// Listener drops the cached settings whenever a change is announced.
// The message body is not trusted; the next read goes to the database.
type Listener struct {
	reader   MessageReader
	provider Provider
	log      *zap.Logger
}

func NewListener(reader MessageReader, provider Provider, log *zap.Logger) *Listener {
	return &Listener{reader: reader, provider: provider, log: log}
}

func (l *Listener) Run(ctx context.Context) error {
	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			l.log.Warn("failed to fetch settings message", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(listenerBackoff):
			}
			continue
		}

		if err := l.provider.Invalidate(ctx); err != nil {
			l.log.Error("failed to invalidate settings", zap.Error(err))
			continue
		}
		l.log.Info("settings invalidated", zap.Int64("offset", msg.Offset))

		if err := l.reader.CommitMessages(ctx, msg); err != nil {
			l.log.Warn("failed to commit settings message", zap.Error(err))
		}
	}
}

func (l *Listener) Close() error {
	return l.reader.Close()
}
