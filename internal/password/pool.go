package password

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool runs hash and verify calls on a bounded number of slots so that a
// login storm cannot starve cheap request paths of CPU.
type Pool struct {
	hasher  *Hasher
	slots   *semaphore.Weighted
	observe func(op string, d time.Duration)
}

type PoolOption func(*Pool)

// WithObserver reports the wall-clock time of every hash or verify call.
func WithObserver(fn func(op string, d time.Duration)) PoolOption {
	return func(p *Pool) {
		p.observe = fn
	}
}

func NewPool(hasher *Hasher, workers int, opts ...PoolOption) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		hasher:  hasher,
		slots:   semaphore.NewWeighted(int64(workers)),
		observe: func(string, time.Duration) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) Hash(ctx context.Context, secret string) (string, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.slots.Release(1)

	start := time.Now()
	defer func() { p.observe("hash", time.Since(start)) }()

	return p.hasher.Hash(secret)
}

func (p *Pool) Verify(ctx context.Context, secret, encoded string) (bool, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.slots.Release(1)

	start := time.Now()
	defer func() { p.observe("verify", time.Since(start)) }()

	return p.hasher.Verify(secret, encoded)
}

func (p *Pool) NeedsUpgrade(encoded string) (bool, error) {
	return p.hasher.NeedsUpgrade(encoded)
}
