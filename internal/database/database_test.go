package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/elskow/scribe/internal/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(&config.DatabaseConfig{
		Host:     "db",
		User:     "scribe",
		Password: "secret",
		Name:     "scribe",
		Port:     5432,
		SSLMode:  "disable",
	})
	assert.Equal(t, "host=db user=scribe password=secret dbname=scribe port=5432 sslmode=disable", dsn)
}

func TestManagerFromDB(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	manager, err := NewManagerFromDB(db, &config.DatabaseConfig{
		MaxOpenConns:    3,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)

	sqlDB, err := manager.DB().DB()
	require.NoError(t, err)
	assert.Equal(t, 3, sqlDB.Stats().MaxOpenConnections)

	require.NoError(t, manager.Ping(context.Background()))
	require.NoError(t, manager.Close())
	assert.Error(t, manager.Ping(context.Background()))
}

func TestRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := NewRedisClient(&config.RedisConfig{Addr: mr.Addr()})
	defer rdb.Close()

	require.NoError(t, PingRedis(context.Background(), rdb))

	mr.Close()
	assert.Error(t, PingRedis(context.Background(), rdb))
}
