package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/elskow/scribe/internal/events"
	"github.com/elskow/scribe/internal/metrics"
	"github.com/elskow/scribe/internal/password"
	"github.com/elskow/scribe/internal/settings"
	"github.com/elskow/scribe/internal/token"
)

const testPassword = "correct horse battery"

func newTestLogger(t *testing.T) *zap.Logger {
	log, err := zap.NewDevelopment()
	require.NoError(t, err)
	return log
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(Models()...))
	return db
}

func newTestConfig() Config {
	return Config{
		SessionTTL:    24 * time.Hour,
		RememberMeTTL: 30 * 24 * time.Hour,
		StoreTimeout:  2 * time.Second,
		EmailTimeout:  200 * time.Millisecond,
		DeviceTTL:     30 * 24 * time.Hour,
		Lockout: LockoutPolicy{
			Window:              15 * time.Minute,
			IdentifierThreshold: 5,
			OriginThreshold:     20,
		},
		OTP: OTPPolicy{
			Length:         6,
			TTL:            10 * time.Minute,
			ResendInterval: time.Minute,
			MaxAttempts:    5,
		},
		Recovery: RecoveryPolicy{
			BatchSize:  10,
			CodeLength: 10,
		},
	}
}

func newTestPasswords(t *testing.T) *password.Pool {
	hasher, err := password.NewHasher(password.Params{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	require.NoError(t, err)
	return password.NewPool(hasher, 4)
}

// fakeClock starts at the wall clock so JWT expiry checks, which use real
// time, stay consistent with the service clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	To       string
	Template string
	Params   map[string]string
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []sentMail
	fail  bool
	delay time.Duration
}

func (m *fakeMailer) Send(ctx context.Context, to, template string, params map[string]string) bool {
	m.mu.Lock()
	m.sent = append(m.sent, sentMail{To: to, Template: template, Params: params})
	fail, delay := m.fail, m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false
		}
	}
	return !fail
}

func (m *fakeMailer) setFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

func (m *fakeMailer) setDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

func (m *fakeMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if code, ok := m.sent[i].Params["code"]; ok {
			return code
		}
	}
	t.Fatal("no one-time code was sent")
	return ""
}

func (m *fakeMailer) templates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.Template)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	svc       *Service
	db        *gorm.DB
	stores    Stores
	clock     *fakeClock
	mailer    *fakeMailer
	events    *recordingPublisher
	settings  *settings.Static
	tokens    *token.Manager
	passwords *password.Pool
	tasks     *Background
	config    Config
	log       *zap.Logger
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	cfg := newTestConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	tokens, err := token.NewManager(token.Config{
		Secret:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:    "scribe-test",
		AccessTTL: 15 * time.Minute,
	})
	require.NoError(t, err)

	log := newTestLogger(t)
	db := newTestDB(t)
	env := &testEnv{
		db:        db,
		stores:    NewStores(db),
		clock:     newFakeClock(),
		mailer:    &fakeMailer{},
		events:    &recordingPublisher{},
		settings:  settings.NewStatic(settings.Defaults()),
		tokens:    tokens,
		passwords: newTestPasswords(t),
		tasks:     NewBackground(log),
		config:    cfg,
		log:       log,
	}
	env.rebuild(t)

	return env
}

// rebuild replaces env.svc with a service over the current env.stores.
func (env *testEnv) rebuild(t *testing.T) {
	t.Helper()

	svc, err := NewService(env.config, Dependencies{
		Stores:    env.stores,
		Tokens:    env.tokens,
		Passwords: env.passwords,
		Mailer:    env.mailer,
		Settings:  env.settings,
		Events:    env.events,
		Metrics:   metrics.New(prometheus.NewRegistry()),
		Tasks:     env.tasks,
	}, env.log, WithClock(env.clock.Now))
	require.NoError(t, err)
	env.svc = svc
}

type userOption func(*User)

func withTwoFactor() userOption {
	return func(u *User) { u.TwoFactorEnabled = true }
}

func withDisabled() userOption {
	return func(u *User) { u.Disabled = true }
}

func withBcrypt(t *testing.T, secret string) userOption {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	return func(u *User) { u.PasswordHash = string(hash) }
}

func (env *testEnv) createUser(t *testing.T, email string, opts ...userOption) *User {
	t.Helper()

	hash, err := env.passwords.Hash(context.Background(), testPassword)
	require.NoError(t, err)

	now := env.clock.Now()
	user := &User{
		ID:           "user-" + email,
		Email:        email,
		DisplayName:  "Test User",
		PasswordHash: hash,
		Role:         RoleMember,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, opt := range opts {
		opt(user)
	}

	require.NoError(t, env.stores.Credentials.Create(context.Background(), user))
	return user
}

func (env *testEnv) login(t *testing.T, email string, meta ClientMeta) *LoginResult {
	t.Helper()
	result, err := env.svc.Login(context.Background(), Credentials{Identifier: email, Secret: testPassword}, meta)
	require.NoError(t, err)
	return result
}

func (env *testEnv) countRows(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var count int64
	require.NoError(t, env.db.Model(model).Where(query, args...).Count(&count).Error)
	return count
}
