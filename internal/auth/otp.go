package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/mailer"
	"github.com/elskow/scribe/internal/token"
)

// SendResult reports whether the code reached the mail server. The code is
// stored and valid either way.
type SendResult struct {
	Sent bool
}

func (s *Service) SendOTP(ctx context.Context, userID string, purpose Purpose) (*SendResult, error) {
	if _, err := ParsePurpose(string(purpose)); err != nil {
		return nil, err
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := checkPurposeState(user, purpose); err != nil {
		return nil, err
	}

	code, err := token.NumericCode(s.config.OTP.Length)
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.stores.Codes.Issue(ctx, &OneTimeCode{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Purpose:   purpose,
		CodeHash:  token.HashScoped(user.ID, string(purpose), code),
		ExpiresAt: now.Add(s.config.OTP.TTL),
		CreatedAt: now,
	}, s.config.OTP.ResendInterval)
	if err != nil {
		return nil, err
	}

	delivered := s.deliverCode(ctx, user, purpose, code)
	s.metrics.OTPSent(string(purpose), delivered)

	return &SendResult{Sent: delivered}, nil
}

// deliverCode bounds the mail call by the email timeout even if the sender
// ignores its context.
func (s *Service) deliverCode(ctx context.Context, user *User, purpose Purpose, code string) bool {
	var cancel context.CancelFunc
	if s.config.EmailTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.config.EmailTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	params := map[string]string{
		"code":       code,
		"name":       user.DisplayName,
		"action":     purposeAction(purpose),
		"expires_in": fmt.Sprintf("%d minutes", int(s.config.OTP.TTL.Minutes())),
	}

	result := make(chan bool, 1)
	go func() {
		result <- s.mailer.Send(ctx, user.Email, mailer.TemplateOneTimeCode, params)
	}()

	select {
	case ok := <-result:
		if !ok {
			s.log.Warn("one-time code not delivered", zap.String("user_id", user.ID), zap.String("purpose", string(purpose)))
		}
		return ok
	case <-ctx.Done():
		s.log.Warn("one-time code delivery timed out", zap.String("user_id", user.ID), zap.String("purpose", string(purpose)))
		return false
	}
}

// VerifyOTP accepts the latest unused, unexpired code of the purpose once.
// Every check counts as an attempt; past the ceiling even the right code is
// rejected.
func (s *Service) VerifyOTP(ctx context.Context, userID string, purpose Purpose, code string) error {
	now := s.now()

	row, err := s.stores.Codes.LatestActive(ctx, userID, purpose, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}

	attempts, err := s.stores.Codes.IncrementAttempts(ctx, row.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}
	if attempts > s.config.OTP.MaxAttempts {
		return ErrInvalidOrExpiredToken
	}

	presented := token.HashScoped(userID, string(purpose), strings.TrimSpace(code))
	if !token.EqualHashes(row.CodeHash, presented) {
		return ErrInvalidOrExpiredToken
	}

	used, err := s.stores.Codes.MarkUsed(ctx, row.ID, now)
	if err != nil {
		return err
	}
	if !used {
		return ErrInvalidOrExpiredToken
	}
	return nil
}

func checkPurposeState(user *User, purpose Purpose) error {
	switch purpose {
	case PurposeEnable2FA:
		if user.TwoFactorEnabled {
			return ErrTwoFactorAlreadyEnabled
		}
	default:
		if !user.TwoFactorEnabled {
			return ErrTwoFactorNotEnabled
		}
	}
	return nil
}

func purposeAction(purpose Purpose) string {
	switch purpose {
	case PurposeEnable2FA:
		return "turn on two-factor authentication"
	case PurposeDisable2FA:
		return "turn off two-factor authentication"
	default:
		return "sign in"
	}
}
