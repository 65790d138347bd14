package auth

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidCredentials        = errors.New("invalid credentials")
	ErrAccountLocked             = errors.New("account temporarily locked")
	ErrOriginBlocked             = errors.New("too many attempts from this address")
	ErrAccountDisabled           = errors.New("account disabled")
	ErrInvalidOrExpiredToken     = errors.New("invalid or expired token")
	ErrSessionRevokedForSecurity = errors.New("refresh token reuse detected, all sessions revoked")
	ErrRateLimitedResend         = errors.New("code requested too soon")

	ErrTwoFactorNotEnabled     = errors.New("two-factor authentication is not enabled")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication is already enabled")
	ErrRegistrationClosed      = errors.New("registration is closed")
	ErrIdentifierTaken         = errors.New("identifier already registered")
	ErrInvalidPurpose          = errors.New("invalid code purpose")
)

// LockoutError is returned while a rate-limit dimension is over threshold.
// RetryAfter is anchored to the oldest failure still inside the window.
type LockoutError struct {
	Reason     error
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("%s, retry after %ds", e.Reason, e.RetryAfterSeconds())
}

func (e *LockoutError) Unwrap() error {
	return e.Reason
}

func (e *LockoutError) RetryAfterSeconds() int {
	return ceilSeconds(e.RetryAfter)
}

type ResendError struct {
	WaitSeconds int
}

func (e *ResendError) Error() string {
	return fmt.Sprintf("%s, wait %ds", ErrRateLimitedResend, e.WaitSeconds)
}

func (e *ResendError) Unwrap() error {
	return ErrRateLimitedResend
}

// RequiresReauth reports whether a refresh failure means the client must
// log in again. Transient store failures do not.
func RequiresReauth(err error) bool {
	return errors.Is(err, ErrInvalidOrExpiredToken) ||
		errors.Is(err, ErrSessionRevokedForSecurity) ||
		errors.Is(err, ErrAccountDisabled) ||
		errors.Is(err, ErrUserNotFound)
}

func IsSecurityRevocation(err error) bool {
	return errors.Is(err, ErrSessionRevokedForSecurity)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
