package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/elskow/scribe/internal/events"
	"github.com/elskow/scribe/internal/mailer"
	"github.com/elskow/scribe/internal/settings"
)

func TestService_Login(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "ana@example.com")

	tests := []struct {
		name       string
		identifier string
		secret     string
		wantErr    error
	}{
		{
			name:       "valid credentials",
			identifier: "ana@example.com",
			secret:     testPassword,
		},
		{
			name:       "identifier is normalized",
			identifier: "  ANA@Example.com ",
			secret:     testPassword,
		},
		{
			name:       "wrong password",
			identifier: "ana@example.com",
			secret:     "nope",
			wantErr:    ErrInvalidCredentials,
		},
		{
			name:       "unknown identifier",
			identifier: "ghost@example.com",
			secret:     testPassword,
			wantErr:    ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.svc.Login(context.Background(), Credentials{
				Identifier: tt.identifier,
				Secret:     tt.secret,
			}, ClientMeta{OriginAddress: "10.0.0.1", UserAgent: "test"})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, result)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, result.Tokens)
			assert.Nil(t, result.SecondFactor)

			claims, err := env.tokens.ParseAccess(result.Tokens.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, user.ID, claims.UserID)
			assert.Equal(t, RoleMember, claims.Role)
			assert.Equal(t, env.clock.Now().Add(24*time.Hour), result.Tokens.RefreshExpiresAt)
		})
	}
}

func TestService_LoginRecordsEveryFailure(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "ana@example.com")

	ctx := context.Background()
	_, wrongPassword := env.svc.Login(ctx, Credentials{Identifier: "ana@example.com", Secret: "nope"}, ClientMeta{})
	_, unknownUser := env.svc.Login(ctx, Credentials{Identifier: "ghost@example.com", Secret: "nope"}, ClientMeta{})

	// The two failures must be indistinguishable to the caller.
	assert.Equal(t, wrongPassword, unknownUser)
	assert.Equal(t, int64(1), env.countRows(t, &LoginAttempt{}, "identifier = ? AND success = ?", "ana@example.com", false))
	assert.Equal(t, int64(1), env.countRows(t, &LoginAttempt{}, "identifier = ? AND success = ?", "ghost@example.com", false))
	assert.Contains(t, env.events.types(), events.LoginFailed)
}

func TestService_IdentifierLockout(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "ana@example.com")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.svc.Login(ctx, Credentials{Identifier: "ana@example.com", Secret: "wrong"}, ClientMeta{})
		require.ErrorIs(t, err, ErrInvalidCredentials)
		env.clock.Advance(time.Second)
	}

	// Locked even with the correct password.
	_, err := env.svc.Login(ctx, Credentials{Identifier: "ana@example.com", Secret: testPassword}, ClientMeta{})
	require.ErrorIs(t, err, ErrAccountLocked)

	var lockout *LockoutError
	require.True(t, errors.As(err, &lockout))
	assert.Equal(t, 15*time.Minute-5*time.Second, lockout.RetryAfter)
	assert.Equal(t, 895, lockout.RetryAfterSeconds())
	assert.Contains(t, env.events.types(), events.LoginLocked)

	// A locked attempt is not recorded, so it cannot extend the lock.
	assert.Equal(t, int64(5), env.countRows(t, &LoginAttempt{}, "identifier = ?", "ana@example.com"))

	env.clock.Advance(15 * time.Minute)

	result, err := env.svc.Login(ctx, Credentials{Identifier: "ana@example.com", Secret: testPassword}, ClientMeta{})
	require.NoError(t, err)
	assert.NotNil(t, result.Tokens)
}

func TestService_OriginLockout(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Lockout.OriginThreshold = 3
	})
	env.createUser(t, "ana@example.com")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.svc.Login(ctx, Credentials{
			Identifier: fmt.Sprintf("ghost%d@example.com", i),
			Secret:     "wrong",
		}, ClientMeta{OriginAddress: "10.0.0.1"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := env.svc.Login(ctx, Credentials{Identifier: "ana@example.com", Secret: testPassword}, ClientMeta{OriginAddress: "10.0.0.1"})
	assert.ErrorIs(t, err, ErrOriginBlocked)

	result, err := env.svc.Login(ctx, Credentials{Identifier: "ana@example.com", Secret: testPassword}, ClientMeta{OriginAddress: "10.0.0.2"})
	require.NoError(t, err)
	assert.NotNil(t, result.Tokens)
}

func TestService_LoginDisabledAccount(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "ana@example.com", withDisabled())
	ctx := context.Background()

	_, err := env.svc.Login(ctx, Credentials{Identifier: "ana@example.com", Secret: testPassword}, ClientMeta{})
	assert.ErrorIs(t, err, ErrAccountDisabled)
	assert.Equal(t, int64(0), env.countRows(t, &LoginAttempt{}, "identifier = ? AND success = ?", "ana@example.com", false))

	_, err = env.svc.Login(ctx, Credentials{Identifier: "ana@example.com", Secret: "wrong"}, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_LoginRequiresSecondFactor(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "ana@example.com", withTwoFactor())

	result := env.login(t, "ana@example.com", ClientMeta{})
	require.NotNil(t, result.SecondFactor)
	assert.Nil(t, result.Tokens)
	assert.Equal(t, user.ID, result.SecondFactor.UserID)
	assert.Equal(t, int64(0), env.countRows(t, &RefreshSession{}, "user_id = ?", user.ID))

	userID, err := env.svc.ResolveChallenge(result.SecondFactor.Challenge)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)

	_, err = env.svc.ResolveChallenge("not-a-challenge")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestService_LoginUpgradesLegacyHash(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "ana@example.com", withBcrypt(t, testPassword))

	result := env.login(t, "ana@example.com", ClientMeta{})
	require.NotNil(t, result.Tokens)

	env.tasks.Wait()

	stored, err := env.stores.Credentials.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))

	// The upgraded hash still accepts the same password.
	result = env.login(t, "ana@example.com", ClientMeta{})
	assert.NotNil(t, result.Tokens)
}

// gatedCredentials holds the first UpdateHashIf call until release is closed.
type gatedCredentials struct {
	CredentialStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedCredentials) UpdateHashIf(ctx context.Context, id, current, hash string) (bool, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return g.CredentialStore.UpdateHashIf(ctx, id, current, hash)
}

func TestService_HashUpgradeKeepsNewerPassword(t *testing.T) {
	env := newTestEnv(t)
	gate := &gatedCredentials{
		CredentialStore: env.stores.Credentials,
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	env.stores.Credentials = gate
	env.rebuild(t)
	ctx := context.Background()

	user := env.createUser(t, "ana@example.com", withBcrypt(t, testPassword))
	env.login(t, "ana@example.com", ClientMeta{})

	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("hash upgrade never started")
	}

	require.NoError(t, env.svc.ChangePassword(ctx, user.ID, testPassword, "brand new secret"))
	close(gate.release)
	env.tasks.Wait()

	_, err := env.svc.Login(ctx, Credentials{Identifier: "ana@example.com", Secret: testPassword}, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.Login(ctx, Credentials{Identifier: "ana@example.com", Secret: "brand new secret"}, ClientMeta{})
	assert.NoError(t, err)
}

func TestService_ChangePasswordLogsUndeliveredNotice(t *testing.T) {
	env := newTestEnv(t)
	core, logs := observer.New(zap.WarnLevel)
	env.tasks = NewBackground(zap.New(core))
	env.rebuild(t)
	env.mailer.setFail(true)

	user := env.createUser(t, "ana@example.com")
	require.NoError(t, env.svc.ChangePassword(context.Background(), user.ID, testPassword, "brand new secret"))
	env.tasks.Wait()

	failed := logs.FilterMessage("background task failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "password-changed-email", failed[0].ContextMap()["task"])
	assert.Contains(t, env.mailer.templates(), mailer.TemplatePasswordChanged)
}

func TestService_Register(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tokens, err := env.svc.Register(ctx, RegisterRequest{
		Email:       "New@Example.com",
		Password:    "a long enough secret",
		DisplayName: "New",
	}, ClientMeta{OriginAddress: "10.0.0.1"})
	require.NoError(t, err)
	require.NotNil(t, tokens)
	assert.Contains(t, env.events.types(), events.UserRegistered)

	user, err := env.stores.Credentials.FindByIdentifier(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, RoleMember, user.Role)
	assert.False(t, user.TwoFactorEnabled)

	_, err = env.svc.Register(ctx, RegisterRequest{Email: "new@example.com", Password: "another secret"}, ClientMeta{})
	assert.ErrorIs(t, err, ErrIdentifierTaken)

	_, err = env.svc.Login(ctx, Credentials{Identifier: "new@example.com", Secret: "a long enough secret"}, ClientMeta{})
	assert.NoError(t, err)
}

func TestService_RegisterClosed(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.settings.Update(context.Background(), settings.Settings{RegistrationOpen: false}))

	_, err := env.svc.Register(context.Background(), RegisterRequest{
		Email:    "new@example.com",
		Password: "a long enough secret",
	}, ClientMeta{})
	assert.ErrorIs(t, err, ErrRegistrationClosed)
}

func TestService_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "ana@example.com")
	ctx := context.Background()

	first := env.login(t, "ana@example.com", ClientMeta{})
	env.login(t, "ana@example.com", ClientMeta{})

	err := env.svc.ChangePassword(ctx, user.ID, "wrong", "brand new secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, env.svc.ChangePassword(ctx, user.ID, testPassword, "brand new secret"))
	env.tasks.Wait()

	assert.Equal(t, int64(0), env.countRows(t, &RefreshSession{}, "user_id = ?", user.ID))
	assert.Contains(t, env.mailer.templates(), mailer.TemplatePasswordChanged)
	assert.Contains(t, env.events.types(), events.PasswordChanged)

	_, err = env.svc.Refresh(ctx, first.Tokens.RefreshToken, ClientMeta{})
	assert.True(t, RequiresReauth(err))

	_, err = env.svc.Login(ctx, Credentials{Identifier: "ana@example.com", Secret: testPassword}, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.Login(ctx, Credentials{Identifier: "ana@example.com", Secret: "brand new secret"}, ClientMeta{})
	assert.NoError(t, err)
}
