package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/elskow/scribe/internal/settings"
	"github.com/elskow/scribe/internal/token"
)

func newTestMiddleware(t *testing.T, provider settings.Provider, localUserID string) (*AuthMiddleware, *token.Manager) {
	tokens, err := token.NewManager(token.Config{
		Secret:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:    "scribe-test",
		AccessTTL: time.Minute,
	})
	require.NoError(t, err)
	return NewAuthMiddleware(tokens, provider, localUserID, newTestLogger(t)), tokens
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	provider := settings.NewStatic(settings.Defaults())
	mw, tokens := newTestMiddleware(t, provider, "local-owner")

	access, _, err := tokens.IssueAccess("u1", RoleMember)
	require.NoError(t, err)
	refresh, err := tokens.IssueRefresh("u1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	tests := []struct {
		name          string
		authorization string
		wantUser      string
		wantErr       bool
	}{
		{name: "bearer token", authorization: "Bearer " + access, wantUser: "u1"},
		{name: "lowercase scheme", authorization: "bearer " + access, wantUser: "u1"},
		{name: "bare token", authorization: access, wantUser: "u1"},
		{name: "missing", authorization: "", wantErr: true},
		{name: "scheme only", authorization: "Bearer ", wantErr: true},
		{name: "refresh token is not an access token", authorization: "Bearer " + refresh, wantErr: true},
		{name: "garbage", authorization: "Bearer abc.def.ghi", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal, err := mw.Authenticate(context.Background(), tt.authorization)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, principal.UserID)
			assert.Equal(t, RoleMember, principal.Role)
			assert.False(t, principal.Local)
		})
	}
}

func TestAuthMiddleware_AuthDisabled(t *testing.T) {
	ctx := context.Background()
	provider := settings.NewStatic(settings.Settings{AuthDisabled: true})

	mw, _ := newTestMiddleware(t, provider, "local-owner")
	principal, err := mw.Authenticate(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "local-owner", Role: RoleOwner, Local: true}, principal)

	// Without a configured local user the flag has no effect.
	mw, _ = newTestMiddleware(t, provider, "")
	_, err = mw.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestAuthMiddleware_AuthenticationMiddleware(t *testing.T) {
	mw, tokens := newTestMiddleware(t, settings.NewStatic(settings.Defaults()), "")
	access, _, err := tokens.IssueAccess("u1", RoleMember)
	require.NoError(t, err)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+access))
	ctx, err = mw.AuthenticationMiddleware(ctx)
	require.NoError(t, err)

	principal, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", principal.UserID)

	_, err = mw.AuthenticationMiddleware(context.Background())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
