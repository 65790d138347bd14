package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// usedCodeGrace keeps spent and expired one-time codes around for a day.
const usedCodeGrace = 24 * time.Hour

// CleanupManager prunes rows that no longer affect any decision. Lockout
// correctness does not depend on it; it only bounds table growth.
type CleanupManager struct {
	stores    Stores
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewCleanupManager(stores Stores, retention, interval time.Duration, logger *zap.Logger) *CleanupManager {
	return &CleanupManager{
		stores:    stores,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CleanupResult counts the rows removed by one sweep.
type CleanupResult struct {
	Attempts int64
	Sessions int64
	Codes    int64
	Devices  int64
}

func (cm *CleanupManager) RunOnce(ctx context.Context) (CleanupResult, error) {
	now := cm.now()
	var (
		result CleanupResult
		errs   []error
		err    error
	)

	if result.Attempts, err = cm.stores.Attempts.PruneBefore(ctx, now.Add(-cm.retention)); err != nil {
		errs = append(errs, err)
	}
	if result.Sessions, err = cm.stores.Sessions.PruneExpired(ctx, now); err != nil {
		errs = append(errs, err)
	}
	if result.Codes, err = cm.stores.Codes.PruneBefore(ctx, now.Add(-usedCodeGrace)); err != nil {
		errs = append(errs, err)
	}
	if result.Devices, err = cm.stores.Devices.PruneExpired(ctx, now); err != nil {
		errs = append(errs, err)
	}

	return result, errors.Join(errs...)
}

func (cm *CleanupManager) Start() {
	if cm.interval <= 0 {
		cm.logger.Info("cleanup disabled")
		return
	}

	cm.stop = make(chan struct{})
	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()

		ticker := time.NewTicker(cm.interval)
		defer ticker.Stop()

		for {
			select {
			case <-cm.stop:
				return
			case <-ticker.C:
				cm.sweep()
			}
		}
	}()
}

func (cm *CleanupManager) Stop() {
	if cm.stop == nil {
		return
	}
	close(cm.stop)
	cm.wg.Wait()
	cm.stop = nil
}

func (cm *CleanupManager) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), cm.interval)
	defer cancel()

	result, err := cm.RunOnce(ctx)
	if err != nil {
		cm.logger.Error("cleanup sweep failed", zap.Error(err))
	}
	cm.logger.Debug("cleanup sweep finished",
		zap.Int64("attempts", result.Attempts),
		zap.Int64("sessions", result.Sessions),
		zap.Int64("codes", result.Codes),
		zap.Int64("devices", result.Devices))
}
