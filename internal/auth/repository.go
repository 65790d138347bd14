package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrNotFound        = errors.New("record not found")
	ErrSessionNotFound = errors.New("refresh session not found")
	ErrSessionExpired  = errors.New("refresh session expired")
	ErrDuplicate       = errors.New("duplicate record")
)

type CredentialStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	UpdateHash(ctx context.Context, id, hash string) error
	// UpdateHashIf replaces the hash only while it still equals current and
	// reports whether it did.
	UpdateHashIf(ctx context.Context, id, current, hash string) (bool, error)
	SetTwoFactor(ctx context.Context, id string, enabled bool) error
}

type AttemptField string

const (
	FieldIdentifier AttemptField = "identifier"
	FieldOrigin     AttemptField = "origin_address"
)

// FailureWindow aggregates failed attempts for one key inside a window.
type FailureWindow struct {
	Count int64
	First time.Time
}

type AttemptStore interface {
	Append(ctx context.Context, attempt *LoginAttempt) error
	Failures(ctx context.Context, field AttemptField, value string, from, to time.Time) (FailureWindow, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SessionStore interface {
	Create(ctx context.Context, session *RefreshSession) error
	// Rotate consumes the row holding oldHash and inserts the row returned by
	// next in the same transaction. It fails with ErrSessionNotFound unless
	// this call is the one that deleted the row.
	Rotate(ctx context.Context, oldHash string, now time.Time, next func(old RefreshSession) (*RefreshSession, error)) error
	DeleteByHash(ctx context.Context, hash string) error
	DeleteByID(ctx context.Context, id, userID string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	DeleteOthers(ctx context.Context, userID, keepHash string) (int64, error)
	ListActive(ctx context.Context, userID string, now time.Time) ([]RefreshSession, error)
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

type OTPStore interface {
	// Issue supersedes unused codes of the same (user, purpose) and stores
	// code, unless the latest code is younger than resendInterval.
	Issue(ctx context.Context, code *OneTimeCode, resendInterval time.Duration) error
	LatestActive(ctx context.Context, userID string, purpose Purpose, now time.Time) (*OneTimeCode, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	MarkUsed(ctx context.Context, id string, now time.Time) (bool, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type RecoveryStore interface {
	Replace(ctx context.Context, userID string, codes []RecoveryCode) error
	Consume(ctx context.Context, userID, codeHash string, now time.Time) (bool, error)
	CountUnused(ctx context.Context, userID string) (int64, error)
	DeleteAll(ctx context.Context, userID string) error
}

type DeviceStore interface {
	Create(ctx context.Context, device *TrustedDevice) error
	FindByHash(ctx context.Context, hash string) (*TrustedDevice, error)
	ListActive(ctx context.Context, userID string, now time.Time) ([]TrustedDevice, error)
	DeleteByID(ctx context.Context, id, userID string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// Stores groups the ledgers the orchestrator works against.
type Stores struct {
	Credentials CredentialStore
	Attempts    AttemptStore
	Sessions    SessionStore
	Codes       OTPStore
	Recovery    RecoveryStore
	Devices     DeviceStore
}

func NewStores(db *gorm.DB) Stores {
	return Stores{
		Credentials: NewCredentialRepository(db),
		Attempts:    NewAttemptRepository(db),
		Sessions:    NewSessionRepository(db),
		Codes:       NewOTPRepository(db),
		Recovery:    NewRecoveryRepository(db),
		Devices:     NewDeviceRepository(db),
	}
}

type credentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) CredentialStore {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Where("email = ?", identifier).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (r *credentialRepository) FindByID(ctx context.Context, id string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (r *credentialRepository) Create(ctx context.Context, user *User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *credentialRepository) UpdateHash(ctx context.Context, id, hash string) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("failed to update password hash: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *credentialRepository) UpdateHashIf(ctx context.Context, id, current, hash string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("id = ? AND password_hash = ?", id, current).
		Update("password_hash", hash)
	if res.Error != nil {
		return false, fmt.Errorf("failed to upgrade password hash: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *credentialRepository) SetTwoFactor(ctx context.Context, id string, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("two_factor_enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("failed to update two-factor flag: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
