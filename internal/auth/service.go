package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/config"
	"github.com/elskow/scribe/internal/events"
	"github.com/elskow/scribe/internal/mailer"
	"github.com/elskow/scribe/internal/metrics"
	"github.com/elskow/scribe/internal/password"
	"github.com/elskow/scribe/internal/settings"
	"github.com/elskow/scribe/internal/token"
)

type OTPPolicy struct {
	Length         int
	TTL            time.Duration
	ResendInterval time.Duration
	MaxAttempts    int
}

type RecoveryPolicy struct {
	BatchSize  int
	CodeLength int
}

type Config struct {
	SessionTTL    time.Duration
	RememberMeTTL time.Duration
	StoreTimeout  time.Duration
	EmailTimeout  time.Duration
	DeviceTTL     time.Duration
	Lockout       LockoutPolicy
	OTP           OTPPolicy
	Recovery      RecoveryPolicy
}

func ConfigFrom(app *config.AppConfig) Config {
	return Config{
		SessionTTL:    app.Auth.SessionTTL,
		RememberMeTTL: app.Auth.RememberMeTTL,
		StoreTimeout:  app.Auth.StoreTimeout,
		EmailTimeout:  app.Email.Timeout,
		DeviceTTL:     app.TrustedDevice.TTL,
		Lockout: LockoutPolicy{
			Window:              app.Lockout.Window,
			IdentifierThreshold: app.Lockout.IdentifierThreshold,
			OriginThreshold:     app.Lockout.OriginThreshold,
		},
		OTP: OTPPolicy{
			Length:         app.OTP.Length,
			TTL:            app.OTP.TTL,
			ResendInterval: app.OTP.ResendInterval,
			MaxAttempts:    app.OTP.MaxAttempts,
		},
		Recovery: RecoveryPolicy{
			BatchSize:  app.Recovery.BatchSize,
			CodeLength: app.Recovery.CodeLength,
		},
	}
}

type Dependencies struct {
	Stores    Stores
	Tokens    *token.Manager
	Passwords *password.Pool
	Mailer    mailer.Sender
	Settings  settings.Provider
	Events    events.Publisher
	Metrics   *metrics.Collector
	Tasks     *Background
}

type Service struct {
	config    Config
	log       *zap.Logger
	stores    Stores
	guard     *Guard
	tokens    *token.Manager
	passwords *password.Pool
	mailer    mailer.Sender
	settings  settings.Provider
	events    events.Publisher
	metrics   *metrics.Collector
	tasks     *Background
	now       func() time.Time

	// dummyHash costs the same to verify as a real hash; unknown identifiers
	// are checked against it.
	dummyHash string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(cfg Config, deps Dependencies, log *zap.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		config:    cfg,
		log:       log,
		stores:    deps.Stores,
		guard:     NewGuard(deps.Stores.Attempts, cfg.Lockout),
		tokens:    deps.Tokens,
		passwords: deps.Passwords,
		mailer:    deps.Mailer,
		settings:  deps.Settings,
		events:    deps.Events,
		metrics:   deps.Metrics,
		tasks:     deps.Tasks,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tasks == nil {
		s.tasks = NewBackground(log)
	}

	dummy, err := s.passwords.Hash(context.Background(), "scribe-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

func (s *Service) Tokens() *token.Manager {
	return s.tokens
}

// storeCtx bounds a credential-store call.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.StoreTimeout)
}

func (s *Service) findUser(ctx context.Context, userID string) (*User, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.stores.Credentials.FindByID(ctx, userID)
}

func (s *Service) publish(ctx context.Context, typ events.Type, userID, origin string, attrs map[string]string) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, events.Event{
		Type:       typ,
		UserID:     userID,
		Origin:     origin,
		OccurredAt: s.now(),
		Attributes: attrs,
	})
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
