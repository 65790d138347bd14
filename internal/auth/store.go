package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type attemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) AttemptStore {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) Append(ctx context.Context, attempt *LoginAttempt) error {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

func (r *attemptRepository) Failures(ctx context.Context, field AttemptField, value string, from, to time.Time) (FailureWindow, error) {
	scope := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&LoginAttempt{}).
			Where(string(field)+" = ? AND success = ? AND occurred_at >= ? AND occurred_at <= ?", value, false, from, to)
	}

	var window FailureWindow
	if err := scope().Count(&window.Count).Error; err != nil {
		return FailureWindow{}, fmt.Errorf("failed to count failures: %w", err)
	}
	if window.Count == 0 {
		return window, nil
	}

	var first LoginAttempt
	if err := scope().Order("occurred_at ASC").Take(&first).Error; err != nil {
		return FailureWindow{}, fmt.Errorf("failed to find first failure: %w", err)
	}
	window.First = first.OccurredAt

	return window, nil
}

func (r *attemptRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("occurred_at < ?", cutoff).Delete(&LoginAttempt{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune login attempts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionStore {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *RefreshSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Rotate(ctx context.Context, oldHash string, now time.Time, next func(old RefreshSession) (*RefreshSession, error)) error {
	expired := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old RefreshSession
		if err := tx.Where("token_hash = ?", oldHash).Take(&old).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to load session: %w", err)
		}

		// Concurrent rotations of the same token serialize here; only the
		// transaction that removes the row may continue.
		res := tx.Where("id = ? AND token_hash = ?", old.ID, oldHash).Delete(&RefreshSession{})
		if res.Error != nil {
			return fmt.Errorf("failed to consume session: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return ErrSessionNotFound
		}

		if !old.ExpiresAt.After(now) {
			expired = true
			return nil
		}

		replacement, err := next(old)
		if err != nil {
			return err
		}
		if err := tx.Create(replacement).Error; err != nil {
			return fmt.Errorf("failed to insert rotated session: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if expired {
		return ErrSessionExpired
	}
	return nil
}

func (r *sessionRepository) DeleteByHash(ctx context.Context, hash string) error {
	if err := r.db.WithContext(ctx).Where("token_hash = ?", hash).Delete(&RefreshSession{}).Error; err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *sessionRepository) DeleteByID(ctx context.Context, id, userID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&RefreshSession{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete session: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *sessionRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&RefreshSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *sessionRepository) DeleteOthers(ctx context.Context, userID, keepHash string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ? AND token_hash <> ?", userID, keepHash).Delete(&RefreshSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *sessionRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]RefreshSession, error) {
	var sessions []RefreshSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (r *sessionRepository) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&RefreshSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

type otpRepository struct {
	db *gorm.DB
}

func NewOTPRepository(db *gorm.DB) OTPStore {
	return &otpRepository{db: db}
}

func (r *otpRepository) Issue(ctx context.Context, code *OneTimeCode, resendInterval time.Duration) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serializes sends per user.
		var owner []string
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Model(&User{}).
			Where("id = ?", code.UserID).
			Pluck("id", &owner).Error
		if err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}

		var latest OneTimeCode
		err = tx.Where("user_id = ? AND purpose = ?", code.UserID, code.Purpose).
			Order("created_at DESC").
			Take(&latest).Error
		switch {
		case err == nil:
			if wait := latest.CreatedAt.Add(resendInterval).Sub(code.CreatedAt); wait > 0 {
				return &ResendError{WaitSeconds: ceilSeconds(wait)}
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to load latest code: %w", err)
		}

		err = tx.Where("user_id = ? AND purpose = ? AND used_at IS NULL", code.UserID, code.Purpose).
			Delete(&OneTimeCode{}).Error
		if err != nil {
			return fmt.Errorf("failed to supersede codes: %w", err)
		}

		if err := tx.Create(code).Error; err != nil {
			return fmt.Errorf("failed to store code: %w", err)
		}
		return nil
	})
}

func (r *otpRepository) LatestActive(ctx context.Context, userID string, purpose Purpose, now time.Time) (*OneTimeCode, error) {
	var code OneTimeCode
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND purpose = ? AND used_at IS NULL AND expires_at > ?", userID, purpose, now).
		Order("created_at DESC").
		Take(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load code: %w", err)
	}
	return &code, nil
}

func (r *otpRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&OneTimeCode{}).Where("id = ?", id).Update("attempts", gorm.Expr("attempts + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		var code OneTimeCode
		if err := tx.Select("attempts").Where("id = ?", id).Take(&code).Error; err != nil {
			return err
		}
		attempts = code.Attempts
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}
	return attempts, nil
}

func (r *otpRepository) MarkUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&OneTimeCode{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", now)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark code used: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *otpRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&OneTimeCode{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune codes: %w", res.Error)
	}
	return res.RowsAffected, nil
}

type recoveryRepository struct {
	db *gorm.DB
}

func NewRecoveryRepository(db *gorm.DB) RecoveryStore {
	return &recoveryRepository{db: db}
}

func (r *recoveryRepository) Replace(ctx context.Context, userID string, codes []RecoveryCode) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&RecoveryCode{}).Error; err != nil {
			return fmt.Errorf("failed to delete recovery codes: %w", err)
		}
		if len(codes) == 0 {
			return nil
		}
		if err := tx.Create(&codes).Error; err != nil {
			return fmt.Errorf("failed to store recovery codes: %w", err)
		}
		return nil
	})
}

func (r *recoveryRepository) Consume(ctx context.Context, userID, codeHash string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&RecoveryCode{}).
		Where("user_id = ? AND code_hash = ? AND used_at IS NULL", userID, codeHash).
		Update("used_at", now)
	if res.Error != nil {
		return false, fmt.Errorf("failed to consume recovery code: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *recoveryRepository) CountUnused(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&RecoveryCode{}).
		Where("user_id = ? AND used_at IS NULL", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count recovery codes: %w", err)
	}
	return count, nil
}

func (r *recoveryRepository) DeleteAll(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&RecoveryCode{}).Error; err != nil {
		return fmt.Errorf("failed to delete recovery codes: %w", err)
	}
	return nil
}

type deviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) DeviceStore {
	return &deviceRepository{db: db}
}

func (r *deviceRepository) Create(ctx context.Context, device *TrustedDevice) error {
	if err := r.db.WithContext(ctx).Create(device).Error; err != nil {
		return fmt.Errorf("failed to create trusted device: %w", err)
	}
	return nil
}

func (r *deviceRepository) FindByHash(ctx context.Context, hash string) (*TrustedDevice, error) {
	var device TrustedDevice
	if err := r.db.WithContext(ctx).Where("token_hash = ?", hash).Take(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load trusted device: %w", err)
	}
	return &device, nil
}

func (r *deviceRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]TrustedDevice, error) {
	var devices []TrustedDevice
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("created_at DESC").
		Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trusted devices: %w", err)
	}
	return devices, nil
}

func (r *deviceRepository) DeleteByID(ctx context.Context, id, userID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&TrustedDevice{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete trusted device: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *deviceRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&TrustedDevice{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete trusted devices: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *deviceRepository) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&TrustedDevice{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune trusted devices: %w", res.Error)
	}
	return res.RowsAffected, nil
}
