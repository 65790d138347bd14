package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const singletonID = 1

type AppSetting struct {
	ID               int  `gorm:"primaryKey;autoIncrement:false"`
	AuthDisabled     bool `gorm:"not null"`
	RegistrationOpen bool `gorm:"not null"`
	UpdatedAt        time.Time
}

func (AppSetting) TableName() string {
	return "app_settings"
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Load returns Defaults when the row has never been written.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	var row AppSetting
	if err := s.db.WithContext(ctx).Where("id = ?", singletonID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Defaults(), nil
		}
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	return Settings{
		AuthDisabled:     row.AuthDisabled,
		RegistrationOpen: row.RegistrationOpen,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

func (s *Store) Save(ctx context.Context, settings Settings) error {
	row := AppSetting{
		ID:               singletonID,
		AuthDisabled:     settings.AuthDisabled,
		RegistrationOpen: settings.RegistrationOpen,
		UpdatedAt:        settings.UpdatedAt,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
