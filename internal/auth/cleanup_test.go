package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupManager_RunOnce(t *testing.T) {
	ctx := context.Background()
	stores := NewStores(newTestDB(t))
	day := 24 * time.Hour

	require.NoError(t, stores.Attempts.Append(ctx, &LoginAttempt{ID: "a-old", Identifier: "ana", OccurredAt: storeNow.Add(-8 * day)}))
	require.NoError(t, stores.Attempts.Append(ctx, &LoginAttempt{ID: "a-new", Identifier: "ana", OccurredAt: storeNow.Add(-time.Hour)}))

	require.NoError(t, stores.Sessions.Create(ctx, &RefreshSession{ID: "s-old", UserID: "u1", TokenHash: "s1", ExpiresAt: storeNow.Add(-time.Minute)}))
	require.NoError(t, stores.Sessions.Create(ctx, &RefreshSession{ID: "s-new", UserID: "u1", TokenHash: "s2", ExpiresAt: storeNow.Add(time.Hour)}))

	require.NoError(t, stores.Codes.Issue(ctx, &OneTimeCode{ID: "c-old", UserID: "u1", Purpose: PurposeLogin, CodeHash: "c", ExpiresAt: storeNow.Add(-2 * day), CreatedAt: storeNow.Add(-2 * day)}, time.Minute))
	require.NoError(t, stores.Codes.Issue(ctx, &OneTimeCode{ID: "c-new", UserID: "u1", Purpose: PurposeEnable2FA, CodeHash: "c", ExpiresAt: storeNow.Add(-time.Hour), CreatedAt: storeNow.Add(-2 * time.Hour)}, time.Minute))

	require.NoError(t, stores.Devices.Create(ctx, &TrustedDevice{ID: "d-old", UserID: "u1", TokenHash: "d1", ExpiresAt: storeNow.Add(-time.Second)}))

	cm := NewCleanupManager(stores, 7*day, time.Minute, newTestLogger(t))
	cm.now = func() time.Time { return storeNow }

	result, err := cm.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{Attempts: 1, Sessions: 1, Codes: 1, Devices: 1}, result)

	result, err = cm.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{}, result)
}

func TestCleanupManager_StartStop(t *testing.T) {
	cm := NewCleanupManager(NewStores(newTestDB(t)), time.Hour, 10*time.Millisecond, newTestLogger(t))
	cm.Start()
	time.Sleep(30 * time.Millisecond)
	cm.Stop()
	cm.Stop()

	disabled := NewCleanupManager(Stores{}, time.Hour, 0, newTestLogger(t))
	disabled.Start()
	disabled.Stop()
}

func TestBackground(t *testing.T) {
	tasks := NewBackground(newTestLogger(t))

	var ran atomic.Int32
	tasks.Go("ok", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	tasks.Go("fails", func(ctx context.Context) error {
		ran.Add(1)
		return errors.New("boom")
	})
	tasks.Go("panics", func(ctx context.Context) error {
		ran.Add(1)
		panic("boom")
	})
	tasks.Wait()
	assert.Equal(t, int32(3), ran.Load())

	tasks.Go("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tasks.Shutdown(ctx), context.DeadlineExceeded)
}
