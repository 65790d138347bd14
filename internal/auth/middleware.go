package auth

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/elskow/scribe/internal/settings"
	"github.com/elskow/scribe/internal/token"
)

type contextKey string

const principalContextKey contextKey = "principal"

const RoleOwner = "owner"

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Role   string
	// Local is set when authentication is disabled and the request runs as
	// the configured local user.
	Local bool
}

type AuthMiddleware struct {
	tokens      *token.Manager
	settings    settings.Provider
	localUserID string
	log         *zap.Logger
}

func NewAuthMiddleware(tokens *token.Manager, provider settings.Provider, localUserID string, log *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:      tokens,
		settings:    provider,
		localUserID: localUserID,
		log:         log,
	}
}

// Authenticate resolves an Authorization header value to a principal. Access
// tokens are checked by signature and expiry only.
func (m *AuthMiddleware) Authenticate(ctx context.Context, authorization string) (Principal, error) {
	if m.localUserID != "" {
		current, err := m.settings.Current(ctx)
		if err != nil {
			m.log.Warn("failed to read runtime settings", zap.Error(err))
		} else if current.AuthDisabled {
			return Principal{UserID: m.localUserID, Role: RoleOwner, Local: true}, nil
		}
	}

	raw := strings.TrimSpace(authorization)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return Principal{}, ErrInvalidOrExpiredToken
	}

	claims, err := m.tokens.ParseAccess(raw)
	if err != nil {
		return Principal{}, ErrInvalidOrExpiredToken
	}

	return Principal{UserID: claims.UserID, Role: claims.Role}, nil
}

// AuthenticationMiddleware authenticates a gRPC call from its metadata.
func (m *AuthMiddleware) AuthenticationMiddleware(ctx context.Context) (context.Context, error) {
	var authorization string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("authorization"); len(values) > 0 {
			authorization = values[0]
		}
	}

	principal, err := m.Authenticate(ctx, authorization)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	return WithPrincipal(ctx, principal), nil
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}
