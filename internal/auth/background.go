package auth

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Background runs fire-and-forget work such as password rehashing. Task
// failures are logged and never reach the request that started them.
type Background struct {
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBackground(log *zap.Logger) *Background {
	ctx, cancel := context.WithCancel(context.Background())
	return &Background{log: log, ctx: ctx, cancel: cancel}
}

func (b *Background) Go(name string, fn func(ctx context.Context) error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("background task panicked", zap.String("task", name), zap.String("panic", fmt.Sprint(r)))
			}
		}()

		if err := fn(b.ctx); err != nil {
			b.log.Warn("background task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

// Wait blocks until every started task has returned.
func (b *Background) Wait() {
	b.wg.Wait()
}

// Shutdown waits for running tasks until ctx is done, then cancels them.
func (b *Background) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		<-done
		return ctx.Err()
	}
}
