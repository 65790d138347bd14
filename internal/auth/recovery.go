package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/elskow/scribe/internal/events"
	"github.com/elskow/scribe/internal/token"
)

const recoveryAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const recoveryScope = "recovery"

// newRecoveryBatch replaces the user's recovery codes and returns the
// plaintext of the new batch, formatted for display.
func (s *Service) newRecoveryBatch(ctx context.Context, userID string) ([]string, error) {
	now := s.now()
	size := s.config.Recovery.BatchSize

	plain := make([]string, 0, size)
	rows := make([]RecoveryCode, 0, size)
	seen := make(map[string]struct{}, size)

	for len(rows) < size {
		raw, err := token.RandomString(recoveryAlphabet, s.config.Recovery.CodeLength)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}

		plain = append(plain, formatRecoveryCode(raw))
		rows = append(rows, RecoveryCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			CodeHash:  recoveryHash(userID, raw),
			CreatedAt: now,
		})
	}

	if err := s.stores.Recovery.Replace(ctx, userID, rows); err != nil {
		return nil, err
	}
	return plain, nil
}

// consumeRecoveryCode spends one code. Failures count against the identifier
// recovery:<userID> so codes cannot be guessed at full speed.
func (s *Service) consumeRecoveryCode(ctx context.Context, userID, code, origin string, now time.Time) error {
	identifier := recoveryIdentifier(userID)
	if err := s.guard.Check(ctx, identifier, "", now); err != nil {
		s.observeLockout(ctx, err, identifier, origin)
		return err
	}

	canonical := canonicalRecoveryCode(code)
	if canonical == "" {
		s.recordAttempt(ctx, identifier, origin, false, now)
		return ErrInvalidOrExpiredToken
	}

	ok, err := s.stores.Recovery.Consume(ctx, userID, recoveryHash(userID, canonical), now)
	if err != nil {
		return err
	}
	if !ok {
		s.recordAttempt(ctx, identifier, origin, false, now)
		return ErrInvalidOrExpiredToken
	}

	s.publish(ctx, events.RecoveryCodeUsed, userID, origin, nil)
	return nil
}

func (s *Service) RemainingRecoveryCodes(ctx context.Context, userID string) (int64, error) {
	return s.stores.Recovery.CountUnused(ctx, userID)
}

func recoveryIdentifier(userID string) string {
	return "recovery:" + userID
}

func recoveryHash(userID, canonical string) string {
	return token.HashScoped(userID, recoveryScope, canonical)
}

func formatRecoveryCode(raw string) string {
	half := len(raw) / 2
	return raw[:half] + "-" + raw[half:]
}

// canonicalRecoveryCode accepts any case and ignores dashes and spaces.
func canonicalRecoveryCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		switch r {
		case '-', ' ', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
