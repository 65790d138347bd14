package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/elskow/scribe/internal/config"
)

func NewRedisClient(config *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
}

// PingRedis fails fast on an unreachable server. Callers treat redis as a
// cache, so startup only logs this.
func PingRedis(ctx context.Context, rdb redis.Cmdable) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	return nil
}
