package auth

import (
	"fmt"
	"time"
)

type Purpose string

const (
	PurposeLogin      Purpose = "login"
	PurposeEnable2FA  Purpose = "enable_2fa"
	PurposeDisable2FA Purpose = "disable_2fa"
)

func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(s); p {
	case PurposeLogin, PurposeEnable2FA, PurposeDisable2FA:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPurpose, s)
	}
}

const RoleMember = "member"

type User struct {
	ID               string `gorm:"primaryKey;size:36"`
	Email            string `gorm:"uniqueIndex;not null"`
	DisplayName      string
	PasswordHash     string `gorm:"not null"`
	Role             string `gorm:"not null;default:member"`
	Disabled         bool   `gorm:"not null;default:false"`
	TwoFactorEnabled bool   `gorm:"not null;default:false"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (User) TableName() string {
	return "users"
}

// LoginAttempt is immutable once written.
type LoginAttempt struct {
	ID            string    `gorm:"primaryKey;size:36"`
	Identifier    string    `gorm:"index;not null"`
	OriginAddress string    `gorm:"index"`
	Success       bool      `gorm:"not null"`
	OccurredAt    time.Time `gorm:"index;not null"`
}

func (LoginAttempt) TableName() string {
	return "login_attempts"
}

type RefreshSession struct {
	ID            string `gorm:"primaryKey;size:36"`
	UserID        string `gorm:"index;not null"`
	TokenHash     string `gorm:"uniqueIndex;not null"`
	OriginAddress string
	UserAgent     string
	RememberMe    bool      `gorm:"not null"`
	ExpiresAt     time.Time `gorm:"index;not null"`
	CreatedAt     time.Time
}

func (RefreshSession) TableName() string {
	return "refresh_sessions"
}

type OneTimeCode struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"index:idx_otp_user_purpose;not null"`
	Purpose   Purpose   `gorm:"index:idx_otp_user_purpose;not null"`
	CodeHash  string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	Attempts  int       `gorm:"not null;default:0"`
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (OneTimeCode) TableName() string {
	return "one_time_codes"
}

type RecoveryCode struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"uniqueIndex:idx_recovery_user_hash;not null"`
	CodeHash  string `gorm:"uniqueIndex:idx_recovery_user_hash;not null"`
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (RecoveryCode) TableName() string {
	return "recovery_codes"
}

type TrustedDevice struct {
	ID            string `gorm:"primaryKey;size:36"`
	UserID        string `gorm:"index;not null"`
	TokenHash     string `gorm:"uniqueIndex;not null"`
	UserAgent     string
	OriginAddress string
	Label         string
	ExpiresAt     time.Time `gorm:"index;not null"`
	CreatedAt     time.Time
}

func (TrustedDevice) TableName() string {
	return "trusted_devices"
}

// Models lists every table owned by this package, in creation order.
func Models() []interface{} {
	return []interface{}{
		&User{},
		&LoginAttempt{},
		&RefreshSession{},
		&OneTimeCode{},
		&RecoveryCode{},
		&TrustedDevice{},
	}
}
