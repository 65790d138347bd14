package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_Check(t *testing.T) {
	policy := LockoutPolicy{Window: 10 * time.Minute, IdentifierThreshold: 3, OriginThreshold: 4}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	type attempt struct {
		identifier string
		origin     string
		success    bool
		at         time.Duration
	}

	tests := []struct {
		name           string
		attempts       []attempt
		identifier     string
		origin         string
		at             time.Duration
		wantReason     error
		wantRetryAfter time.Duration
	}{
		{
			name:       "no history",
			identifier: "ana",
			origin:     "10.0.0.1",
		},
		{
			name: "below identifier threshold",
			attempts: []attempt{
				{identifier: "ana", at: 0},
				{identifier: "ana", at: time.Minute},
			},
			identifier: "ana",
			at:         2 * time.Minute,
		},
		{
			name: "identifier locked, anchored to oldest failure",
			attempts: []attempt{
				{identifier: "ana", at: 0},
				{identifier: "ana", at: time.Minute},
				{identifier: "ana", at: 2 * time.Minute},
			},
			identifier:     "ana",
			at:             3 * time.Minute,
			wantReason:     ErrAccountLocked,
			wantRetryAfter: 7 * time.Minute,
		},
		{
			name: "successes do not count",
			attempts: []attempt{
				{identifier: "ana", at: 0},
				{identifier: "ana", at: time.Minute, success: true},
				{identifier: "ana", at: 2 * time.Minute},
			},
			identifier: "ana",
			at:         3 * time.Minute,
		},
		{
			name: "old failures fall out of the window",
			attempts: []attempt{
				{identifier: "ana", at: 0},
				{identifier: "ana", at: time.Minute},
				{identifier: "ana", at: 2 * time.Minute},
			},
			identifier: "ana",
			at:         10*time.Minute + time.Second,
		},
		{
			name: "origin blocked across identifiers",
			attempts: []attempt{
				{identifier: "a", origin: "10.0.0.1", at: 0},
				{identifier: "b", origin: "10.0.0.1", at: time.Minute},
				{identifier: "c", origin: "10.0.0.1", at: 2 * time.Minute},
				{identifier: "d", origin: "10.0.0.1", at: 3 * time.Minute},
			},
			identifier:     "ana",
			origin:         "10.0.0.1",
			at:             4 * time.Minute,
			wantReason:     ErrOriginBlocked,
			wantRetryAfter: 6 * time.Minute,
		},
		{
			name: "empty origin is not checked",
			attempts: []attempt{
				{identifier: "a", at: 0},
				{identifier: "b", at: 0},
				{identifier: "c", at: 0},
				{identifier: "d", at: 0},
			},
			identifier: "ana",
			at:         time.Minute,
		},
		{
			name: "identifier checked before origin",
			attempts: []attempt{
				{identifier: "ana", origin: "10.0.0.1", at: 0},
				{identifier: "ana", origin: "10.0.0.1", at: 0},
				{identifier: "ana", origin: "10.0.0.1", at: 0},
				{identifier: "ana", origin: "10.0.0.1", at: 0},
			},
			identifier:     "ana",
			origin:         "10.0.0.1",
			at:             time.Minute,
			wantReason:     ErrAccountLocked,
			wantRetryAfter: 9 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			guard := NewGuard(NewAttemptRepository(newTestDB(t)), policy)

			for _, a := range tt.attempts {
				require.NoError(t, guard.Record(ctx, a.identifier, a.origin, a.success, base.Add(a.at)))
			}

			err := guard.Check(ctx, tt.identifier, tt.origin, base.Add(tt.at))
			if tt.wantReason == nil {
				assert.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantReason)
			var lockout *LockoutError
			require.True(t, errors.As(err, &lockout))
			assert.Equal(t, tt.wantRetryAfter, lockout.RetryAfter)
		})
	}
}

func TestLockoutError(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter time.Duration
		want       int
	}{
		{name: "whole seconds", retryAfter: 90 * time.Second, want: 90},
		{name: "rounds up", retryAfter: 1500 * time.Millisecond, want: 2},
		{name: "never negative", retryAfter: -time.Second, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &LockoutError{Reason: ErrAccountLocked, RetryAfter: tt.retryAfter}
			assert.Equal(t, tt.want, err.RetryAfterSeconds())
			assert.ErrorIs(t, err, ErrAccountLocked)
		})
	}
}

func TestRequiresReauth(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "invalid token", err: ErrInvalidOrExpiredToken, want: true},
		{name: "theft", err: ErrSessionRevokedForSecurity, want: true},
		{name: "disabled", err: ErrAccountDisabled, want: true},
		{name: "wrapped", err: errors.Join(errors.New("refresh"), ErrInvalidOrExpiredToken), want: true},
		{name: "store outage", err: context.DeadlineExceeded, want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequiresReauth(tt.err))
		})
	}
}
