// Package settings provides the process-wide runtime flags that an admin can
// flip without a restart. Reads go through Provider so every instance sees a
// change once its cached copy is invalidated.
package settings

import (
	"context"
	"sync"
	"time"
)

type Settings struct {
	AuthDisabled     bool      `json:"auth_disabled"`
	RegistrationOpen bool      `json:"registration_open"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func Defaults() Settings {
	return Settings{RegistrationOpen: true}
}

type Provider interface {
	Current(ctx context.Context) (Settings, error)
	Update(ctx context.Context, s Settings) error
	Invalidate(ctx context.Context) error
}

// Static keeps settings in memory. Used for single-process setups and tests.
type Static struct {
	mu       sync.RWMutex
	settings Settings
}

func NewStatic(s Settings) *Static {
	return &Static{settings: s}
}

func (p *Static) Current(context.Context) (Settings, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings, nil
}

func (p *Static) Update(_ context.Context, s Settings) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	p.settings = s
	return nil
}

func (p *Static) Invalidate(context.Context) error {
	return nil
}
