// Package events carries security events out of the auth core without
// coupling their delivery to the request that produced them.
package events

import (
	"context"
	"time"
)

type Type string

const (
	LoginSucceeded     Type = "login.succeeded"
	LoginFailed        Type = "login.failed"
	LoginLocked        Type = "login.locked"
	SessionTheft       Type = "session.theft_detected"
	SessionsRevokedAll Type = "sessions.revoked_all"
	TwoFactorEnabled   Type = "two_factor.enabled"
	TwoFactorDisabled  Type = "two_factor.disabled"
	RecoveryCodeUsed   Type = "recovery_code.used"
	PasswordChanged    Type = "password.changed"
	UserRegistered     Type = "user.registered"
	TrustedDeviceAdded Type = "trusted_device.added"
)

type Event struct {
	Type       Type              `json:"type"`
	UserID     string            `json:"user_id,omitempty"`
	Origin     string            `json:"origin,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type Sink interface {
	Write(ctx context.Context, event Event) error
}

type Publisher interface {
	Publish(ctx context.Context, event Event)
}
