package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/events"
	"github.com/elskow/scribe/internal/token"
)

const maxDeviceLabel = 64

type DeviceView struct {
	ID            string
	Label         string
	UserAgent     string
	OriginAddress string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// deviceTrusted never fails the login; any problem means "ask for a code".
func (s *Service) deviceTrusted(ctx context.Context, userID, deviceToken string, now time.Time) bool {
	device, err := s.stores.Devices.FindByHash(ctx, token.HashSecret(deviceToken))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn("trusted device lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return false
	}
	if device.UserID != userID {
		return false
	}
	return device.ExpiresAt.After(now)
}

func (s *Service) enrollDevice(ctx context.Context, userID, label string, meta ClientMeta) (string, time.Time, error) {
	secret, err := token.NewSecret()
	if err != nil {
		return "", time.Time{}, err
	}

	now := s.now()
	expiresAt := now.Add(s.config.DeviceTTL)
	if label == "" {
		label = meta.UserAgent
	}
	label = Truncate(label, maxDeviceLabel)

	err = s.stores.Devices.Create(ctx, &TrustedDevice{
		ID:            uuid.NewString(),
		UserID:        userID,
		TokenHash:     token.HashSecret(secret),
		UserAgent:     meta.userAgent(),
		OriginAddress: meta.OriginAddress,
		Label:         label,
		ExpiresAt:     expiresAt,
		CreatedAt:     now,
	})
	if err != nil {
		return "", time.Time{}, err
	}

	s.publish(ctx, events.TrustedDeviceAdded, userID, meta.OriginAddress, map[string]string{"label": label})
	return secret, expiresAt, nil
}

func (s *Service) ListTrustedDevices(ctx context.Context, userID string) ([]DeviceView, error) {
	rows, err := s.stores.Devices.ListActive(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}

	views := make([]DeviceView, 0, len(rows))
	for _, row := range rows {
		views = append(views, DeviceView{
			ID:            row.ID,
			Label:         row.Label,
			UserAgent:     row.UserAgent,
			OriginAddress: row.OriginAddress,
			CreatedAt:     row.CreatedAt,
			ExpiresAt:     row.ExpiresAt,
		})
	}
	return views, nil
}

func (s *Service) RevokeTrustedDevice(ctx context.Context, id, userID string) (bool, error) {
	return s.stores.Devices.DeleteByID(ctx, id, userID)
}

func (s *Service) RevokeAllTrustedDevices(ctx context.Context, userID string) (int64, error) {
	return s.stores.Devices.DeleteAllForUser(ctx, userID)
}
