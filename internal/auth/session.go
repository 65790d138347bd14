package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/events"
	"github.com/elskow/scribe/internal/token"
)

type SessionView struct {
	ID            string
	UserAgent     string
	OriginAddress string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	IsCurrent     bool
}

// Refresh exchanges a refresh token for a new pair. A well-signed token whose
// row is already gone is treated as stolen: every session and trusted device
// of its user is revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (*TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		s.metrics.Refresh("invalid")
		return nil, ErrInvalidOrExpiredToken
	}

	user, err := s.findUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.metrics.Refresh("invalid")
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, err
	}
	if user.Disabled {
		s.metrics.Refresh("disabled")
		return nil, ErrAccountDisabled
	}

	now := s.now()
	var (
		nextToken  string
		nextExpiry time.Time
	)

	err = s.stores.Sessions.Rotate(ctx, token.HashSecret(refreshToken), now, func(old RefreshSession) (*RefreshSession, error) {
		nextExpiry = now.Add(s.sessionTTL(old.RememberMe))

		tok, err := s.tokens.IssueRefresh(old.UserID, nextExpiry)
		if err != nil {
			return nil, err
		}
		nextToken = tok

		return &RefreshSession{
			ID:            uuid.NewString(),
			UserID:        old.UserID,
			TokenHash:     token.HashSecret(tok),
			OriginAddress: meta.OriginAddress,
			UserAgent:     meta.userAgent(),
			RememberMe:    old.RememberMe,
			ExpiresAt:     nextExpiry,
			CreatedAt:     now,
		}, nil
	})

	switch {
	case errors.Is(err, ErrSessionNotFound):
		s.metrics.Refresh("reuse_detected")
		s.log.Warn("refresh token reuse detected, revoking all sessions",
			zap.String("user_id", claims.UserID),
			zap.String("origin", meta.OriginAddress))

		sessions, devices := s.revokeEverything(context.WithoutCancel(ctx), claims.UserID)
		s.publish(ctx, events.SessionTheft, claims.UserID, meta.OriginAddress, map[string]string{
			"sessions_revoked": strconv.FormatInt(sessions, 10),
			"devices_revoked":  strconv.FormatInt(devices, 10),
		})
		return nil, ErrSessionRevokedForSecurity
	case errors.Is(err, ErrSessionExpired):
		s.metrics.Refresh("expired")
		return nil, ErrInvalidOrExpiredToken
	case err != nil:
		return nil, err
	}

	access, accessExpiresAt, err := s.tokens.IssueAccess(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	s.metrics.Refresh("rotated")

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     nextToken,
		RefreshExpiresAt: nextExpiry,
	}, nil
}

// Logout ends the session of refreshToken. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.stores.Sessions.DeleteByHash(ctx, token.HashSecret(refreshToken))
}

func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	sessions, err := s.stores.Sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return err
	}
	devices, err := s.stores.Devices.DeleteAllForUser(ctx, userID)
	if err != nil {
		return err
	}

	s.publish(ctx, events.SessionsRevokedAll, userID, "", map[string]string{
		"sessions_revoked": strconv.FormatInt(sessions, 10),
		"devices_revoked":  strconv.FormatInt(devices, 10),
	})
	return nil
}

func (s *Service) ListSessions(ctx context.Context, userID, currentRefreshToken string) ([]SessionView, error) {
	rows, err := s.stores.Sessions.ListActive(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}

	var currentHash string
	if currentRefreshToken != "" {
		currentHash = token.HashSecret(currentRefreshToken)
	}

	views := make([]SessionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, SessionView{
			ID:            row.ID,
			UserAgent:     row.UserAgent,
			OriginAddress: row.OriginAddress,
			CreatedAt:     row.CreatedAt,
			ExpiresAt:     row.ExpiresAt,
			IsCurrent:     currentHash != "" && token.EqualHashes(row.TokenHash, currentHash),
		})
	}
	return views, nil
}

func (s *Service) RevokeSession(ctx context.Context, id, userID string) (bool, error) {
	return s.stores.Sessions.DeleteByID(ctx, id, userID)
}

// RevokeOtherSessions keeps only the session of currentRefreshToken.
func (s *Service) RevokeOtherSessions(ctx context.Context, userID, currentRefreshToken string) (int64, error) {
	var keep string
	if currentRefreshToken != "" {
		keep = token.HashSecret(currentRefreshToken)
	}
	return s.stores.Sessions.DeleteOthers(ctx, userID, keep)
}

// revokeEverything is best effort; failures are logged.
func (s *Service) revokeEverything(ctx context.Context, userID string) (sessions, devices int64) {
	sessions, err := s.stores.Sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		s.log.Error("failed to revoke sessions", zap.String("user_id", userID), zap.Error(err))
	}
	devices, err = s.stores.Devices.DeleteAllForUser(ctx, userID)
	if err != nil {
		s.log.Error("failed to revoke trusted devices", zap.String("user_id", userID), zap.Error(err))
	}
	return sessions, devices
}
