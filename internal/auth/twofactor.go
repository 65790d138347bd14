package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/events"
)

type SecondFactorRequest struct {
	UserID         string
	Code           string
	IsRecoveryCode bool
	TrustDevice    bool
	RememberMe     bool
	DeviceLabel    string
}

type SecondFactorResult struct {
	Tokens          *TokenPair
	DeviceToken     string
	DeviceExpiresAt time.Time
}

// ResolveChallenge returns the user a second-factor challenge was issued to.
func (s *Service) ResolveChallenge(challenge string) (string, error) {
	claims, err := s.tokens.ParseChallenge(challenge)
	if err != nil {
		return "", ErrInvalidOrExpiredToken
	}
	return claims.UserID, nil
}

// VerifySecondFactor completes a login that returned SecondFactorRequired.
// A recovery code replaces the emailed code. A trusted device is enrolled
// only here, and only on request.
func (s *Service) VerifySecondFactor(ctx context.Context, req SecondFactorRequest, meta ClientMeta) (*SecondFactorResult, error) {
	user, err := s.findUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user.Disabled {
		return nil, ErrAccountDisabled
	}
	if !user.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}

	method := "otp"
	if req.IsRecoveryCode {
		method = "recovery"
		err = s.consumeRecoveryCode(ctx, user.ID, req.Code, meta.OriginAddress, s.now())
	} else {
		err = s.VerifyOTP(ctx, user.ID, PurposeLogin, req.Code)
	}
	if err != nil {
		s.metrics.SecondFactor(method, "failure")
		return nil, err
	}
	s.metrics.SecondFactor(method, "success")

	tokens, err := s.issueSession(ctx, user, req.RememberMe, meta)
	if err != nil {
		return nil, err
	}
	result := &SecondFactorResult{Tokens: tokens}

	if req.TrustDevice {
		deviceToken, expiresAt, err := s.enrollDevice(ctx, user.ID, req.DeviceLabel, meta)
		if err != nil {
			// The login itself succeeded; the device just stays untrusted.
			s.log.Error("failed to enroll trusted device", zap.String("user_id", user.ID), zap.Error(err))
		} else {
			result.DeviceToken = deviceToken
			result.DeviceExpiresAt = expiresAt
		}
	}

	s.publish(ctx, events.LoginSucceeded, user.ID, meta.OriginAddress, map[string]string{"method": method})
	return result, nil
}

// EnableTwoFactor turns the second factor on after an enable_2fa code and
// returns a fresh recovery batch. Previous recovery codes stop working.
func (s *Service) EnableTwoFactor(ctx context.Context, userID, code string) ([]string, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	if err := s.VerifyOTP(ctx, user.ID, PurposeEnable2FA, code); err != nil {
		return nil, err
	}

	codes, err := s.newRecoveryBatch(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.setTwoFactor(ctx, user.ID, true); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TwoFactorEnabled, user.ID, "", nil)
	return codes, nil
}

// DisableTwoFactor requires the password and a disable_2fa code. Recovery
// codes and trusted devices go with the factor they stood in for.
func (s *Service) DisableTwoFactor(ctx context.Context, userID, password, code string) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}

	if err := s.confirmPassword(ctx, user, password); err != nil {
		return err
	}
	if err := s.VerifyOTP(ctx, user.ID, PurposeDisable2FA, code); err != nil {
		return err
	}

	if err := s.setTwoFactor(ctx, user.ID, false); err != nil {
		return err
	}
	if err := s.stores.Recovery.DeleteAll(ctx, user.ID); err != nil {
		return err
	}
	devices, err := s.stores.Devices.DeleteAllForUser(ctx, user.ID)
	if err != nil {
		return err
	}

	s.log.Info("two-factor authentication disabled",
		zap.String("user_id", user.ID),
		zap.Int64("devices_revoked", devices))
	s.publish(ctx, events.TwoFactorDisabled, user.ID, "", nil)
	return nil
}

func (s *Service) RegenerateRecoveryCodes(ctx context.Context, userID, password string) ([]string, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}
	if err := s.confirmPassword(ctx, user, password); err != nil {
		return nil, err
	}
	return s.newRecoveryBatch(ctx, user.ID)
}

// confirmPassword re-checks the password of a signed-in user. It shares the
// identifier lockout with login.
func (s *Service) confirmPassword(ctx context.Context, user *User, secret string) error {
	now := s.now()
	if err := s.guard.Check(ctx, user.Email, "", now); err != nil {
		return err
	}

	ok, err := s.passwords.Verify(ctx, secret, user.PasswordHash)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil || !ok {
		s.recordAttempt(ctx, user.Email, "", false, now)
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Service) setTwoFactor(ctx context.Context, userID string, enabled bool) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	return s.stores.Credentials.SetTwoFactor(ctx, userID, enabled)
}
