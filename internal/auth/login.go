package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/events"
	"github.com/elskow/scribe/internal/token"
)

type Credentials struct {
	Identifier string
	Secret     string
	RememberMe bool
}

// ClientMeta describes the caller of an operation. DeviceToken is the
// trusted-device credential the client holds, if any.
type ClientMeta struct {
	OriginAddress string
	UserAgent     string
	DeviceToken   string
}

// MaxUserAgent bounds the user agent stored on sessions and devices.
const MaxUserAgent = 512

func (m ClientMeta) userAgent() string {
	return Truncate(m.UserAgent, MaxUserAgent)
}

// Truncate drops invalid UTF-8 from s and cuts it to at most limit bytes
// on a character boundary.
func Truncate(s string, limit int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// SecondFactorRequired carries only what the client needs to continue.
type SecondFactorRequired struct {
	UserID    string
	Challenge string
}

// LoginResult holds exactly one of Tokens or SecondFactor.
type LoginResult struct {
	Tokens       *TokenPair
	SecondFactor *SecondFactorRequired
}

func (s *Service) Login(ctx context.Context, creds Credentials, meta ClientMeta) (*LoginResult, error) {
	now := s.now()
	identifier := normalizeIdentifier(creds.Identifier)

	if err := s.guard.Check(ctx, identifier, meta.OriginAddress, now); err != nil {
		s.observeLockout(ctx, err, identifier, meta.OriginAddress)
		return nil, err
	}

	user, err := s.authenticate(ctx, identifier, creds.Secret, meta.OriginAddress, now)
	if err != nil {
		s.metrics.Login(loginResult(err))
		return nil, err
	}

	if user.TwoFactorEnabled {
		if meta.DeviceToken != "" && s.deviceTrusted(ctx, user.ID, meta.DeviceToken, now) {
			tokens, err := s.issueSession(ctx, user, creds.RememberMe, meta)
			if err != nil {
				return nil, err
			}
			s.metrics.SecondFactor("trusted_device", "success")
			s.metrics.Login("success")
			s.publish(ctx, events.LoginSucceeded, user.ID, meta.OriginAddress, map[string]string{"method": "trusted_device"})
			return &LoginResult{Tokens: tokens}, nil
		}

		challenge, err := s.tokens.IssueChallenge(user.ID)
		if err != nil {
			return nil, err
		}
		s.metrics.Login("second_factor_required")
		return &LoginResult{SecondFactor: &SecondFactorRequired{UserID: user.ID, Challenge: challenge}}, nil
	}

	tokens, err := s.issueSession(ctx, user, creds.RememberMe, meta)
	if err != nil {
		return nil, err
	}
	s.metrics.Login("success")
	s.publish(ctx, events.LoginSucceeded, user.ID, meta.OriginAddress, map[string]string{"method": "password"})

	return &LoginResult{Tokens: tokens}, nil
}

// authenticate verifies identifier and secret and records the attempt before
// returning. Unknown identifiers cost one full verification and fail with
// the same error as a wrong password.
func (s *Service) authenticate(ctx context.Context, identifier, secret, origin string, now time.Time) (*User, error) {
	lookupCtx, cancel := s.storeCtx(ctx)
	user, err := s.stores.Credentials.FindByIdentifier(lookupCtx, identifier)
	cancel()
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	encoded := s.dummyHash
	if user != nil {
		encoded = user.PasswordHash
	}

	ok, err := s.passwords.Verify(ctx, secret, encoded)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Error("stored password hash is unusable", zap.String("identifier", identifier), zap.Error(err))
		ok = false
	}

	if user == nil || !ok {
		s.recordAttempt(ctx, identifier, origin, false, now)
		s.publish(ctx, events.LoginFailed, "", origin, map[string]string{"identifier": identifier})
		return nil, ErrInvalidCredentials
	}

	// Disablement is only revealed to someone holding the password, and is
	// not counted as a failure.
	if user.Disabled {
		return nil, ErrAccountDisabled
	}

	s.recordAttempt(ctx, identifier, origin, true, now)
	s.maybeRehash(user.ID, user.PasswordHash, secret)

	return user, nil
}

// recordAttempt outlives the request context so an aborted request is
// still counted.
func (s *Service) recordAttempt(ctx context.Context, identifier, origin string, success bool, now time.Time) {
	ctx, cancel := s.storeCtx(context.WithoutCancel(ctx))
	defer cancel()

	if err := s.guard.Record(ctx, identifier, origin, success, now); err != nil {
		s.log.Error("failed to record login attempt",
			zap.String("identifier", identifier),
			zap.Bool("success", success),
			zap.Error(err))
	}
}

func (s *Service) maybeRehash(userID, encoded, secret string) {
	needs, err := s.passwords.NeedsUpgrade(encoded)
	if err != nil || !needs {
		return
	}

	s.tasks.Go("rehash", func(ctx context.Context) error {
		hash, err := s.passwords.Hash(ctx, secret)
		if err != nil {
			return err
		}

		ctx, cancel := s.storeCtx(ctx)
		defer cancel()
		upgraded, err := s.stores.Credentials.UpdateHashIf(ctx, userID, encoded, hash)
		if err != nil {
			return err
		}
		if !upgraded {
			// The password changed while this hash was computed.
			s.log.Debug("password hash upgrade superseded", zap.String("user_id", userID))
			return nil
		}

		s.log.Info("password hash upgraded", zap.String("user_id", userID))
		return nil
	})
}

func (s *Service) issueSession(ctx context.Context, user *User, rememberMe bool, meta ClientMeta) (*TokenPair, error) {
	now := s.now()
	expiresAt := now.Add(s.sessionTTL(rememberMe))

	refresh, err := s.tokens.IssueRefresh(user.ID, expiresAt)
	if err != nil {
		return nil, err
	}

	err = s.stores.Sessions.Create(ctx, &RefreshSession{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		TokenHash:     token.HashSecret(refresh),
		OriginAddress: meta.OriginAddress,
		UserAgent:     meta.userAgent(),
		RememberMe:    rememberMe,
		ExpiresAt:     expiresAt,
		CreatedAt:     now,
	})
	if err != nil {
		return nil, err
	}

	access, accessExpiresAt, err := s.tokens.IssueAccess(user.ID, user.Role)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: expiresAt,
	}, nil
}

func (s *Service) sessionTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return s.config.RememberMeTTL
	}
	return s.config.SessionTTL
}

func (s *Service) observeLockout(ctx context.Context, err error, identifier, origin string) {
	var lockout *LockoutError
	if !errors.As(err, &lockout) {
		return
	}

	dimension := "identifier"
	if errors.Is(lockout.Reason, ErrOriginBlocked) {
		dimension = "origin"
	}

	s.metrics.Lockout(dimension)
	s.metrics.Login("locked")
	s.publish(ctx, events.LoginLocked, "", origin, map[string]string{
		"identifier":  identifier,
		"dimension":   dimension,
		"retry_after": strconv.Itoa(lockout.RetryAfterSeconds()),
	})
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountDisabled):
		return "disabled"
	default:
		return "error"
	}
}
