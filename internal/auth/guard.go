package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type LockoutPolicy struct {
	Window              time.Duration
	IdentifierThreshold int
	OriginThreshold     int
}

// Guard enforces the two-dimension lockout. Counts are recomputed from the
// attempt ledger on every check so all instances agree.
type Guard struct {
	attempts AttemptStore
	policy   LockoutPolicy
}

func NewGuard(attempts AttemptStore, policy LockoutPolicy) *Guard {
	return &Guard{attempts: attempts, policy: policy}
}

// Check returns a *LockoutError when the identifier or the origin has too
// many failures inside the window ending at now. The identifier is checked
// first; an empty origin is not checked.
func (g *Guard) Check(ctx context.Context, identifier, origin string, now time.Time) error {
	if err := g.checkDimension(ctx, FieldIdentifier, identifier, g.policy.IdentifierThreshold, ErrAccountLocked, now); err != nil {
		return err
	}
	if origin == "" {
		return nil
	}
	return g.checkDimension(ctx, FieldOrigin, origin, g.policy.OriginThreshold, ErrOriginBlocked, now)
}

func (g *Guard) checkDimension(ctx context.Context, field AttemptField, value string, threshold int, reason error, now time.Time) error {
	if threshold <= 0 {
		return nil
	}

	window, err := g.attempts.Failures(ctx, field, value, now.Add(-g.policy.Window), now)
	if err != nil {
		return err
	}
	if window.Count < int64(threshold) {
		return nil
	}

	retryAfter := window.First.Add(g.policy.Window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &LockoutError{Reason: reason, RetryAfter: retryAfter}
}

// Record appends one attempt to the ledger.
func (g *Guard) Record(ctx context.Context, identifier, origin string, success bool, now time.Time) error {
	return g.attempts.Append(ctx, &LoginAttempt{
		ID:            uuid.NewString(),
		Identifier:    identifier,
		OriginAddress: origin,
		Success:       success,
		OccurredAt:    now,
	})
}
