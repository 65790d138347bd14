package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const CacheKey = "settings:current"

// Announcer tells other instances that settings changed.
type Announcer interface {
	Announce(ctx context.Context, s Settings) error
}

// CachedProvider reads through a redis copy of the app_settings row. Redis
// failures degrade to reading the database.
type CachedProvider struct {
	store     *Store
	rdb       redis.Cmdable
	ttl       time.Duration
	announcer Announcer
	log       *zap.Logger
}

func NewCachedProvider(store *Store, rdb redis.Cmdable, ttl time.Duration, announcer Announcer, log *zap.Logger) *CachedProvider {
	return &CachedProvider{
		store:     store,
		rdb:       rdb,
		ttl:       ttl,
		announcer: announcer,
		log:       log,
	}
}

func (p *CachedProvider) Current(ctx context.Context) (Settings, error) {
	raw, err := p.rdb.Get(ctx, CacheKey).Bytes()
	switch {
	case err == nil:
		var s Settings
		if jsonErr := json.Unmarshal(raw, &s); jsonErr == nil {
			return s, nil
		}
		p.log.Warn("discarding malformed cached settings")
	case !errors.Is(err, redis.Nil):
		p.log.Warn("settings cache unavailable", zap.Error(err))
	}

	s, err := p.store.Load(ctx)
	if err != nil {
		return Settings{}, err
	}

	if raw, err := json.Marshal(s); err == nil {
		if err := p.rdb.Set(ctx, CacheKey, raw, p.ttl).Err(); err != nil {
			p.log.Warn("failed to cache settings", zap.Error(err))
		}
	}

	return s, nil
}

func (p *CachedProvider) Update(ctx context.Context, s Settings) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	if err := p.store.Save(ctx, s); err != nil {
		return err
	}
	if err := p.Invalidate(ctx); err != nil {
		p.log.Warn("failed to invalidate settings cache", zap.Error(err))
	}

	if p.announcer != nil {
		if err := p.announcer.Announce(ctx, s); err != nil {
			p.log.Warn("failed to announce settings change", zap.Error(err))
		}
	}
	return nil
}

func (p *CachedProvider) Invalidate(ctx context.Context) error {
	return p.rdb.Del(ctx, CacheKey).Err()
}
