package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TypeAccess    = "access"
	TypeRefresh   = "refresh"
	TypeChallenge = "mfa"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrWrongType    = errors.New("unexpected token type")
)

type Config struct {
	Secret       []byte
	Issuer       string
	AccessTTL    time.Duration
	ChallengeTTL time.Duration
}

type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role,omitempty"`
	Type   string `json:"typ"`
	Nonce  string `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}

type Manager struct {
	config Config
	now    func() time.Time
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("token secret must be at least 16 bytes")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	return &Manager{config: cfg, now: time.Now}, nil
}

// IssueAccess mints a short-lived stateless access token.
func (m *Manager) IssueAccess(userID, role string) (string, time.Time, error) {
	expiresAt := m.now().Add(m.config.AccessTTL)
	signed, err := m.sign(Claims{UserID: userID, Role: role, Type: TypeAccess}, expiresAt)
	return signed, expiresAt, err
}

// IssueRefresh mints a refresh token carrying 32 bytes of fresh entropy.
// Only its hash is ever persisted.
func (m *Manager) IssueRefresh(userID string, expiresAt time.Time) (string, error) {
	nonce, err := NewSecret()
	if err != nil {
		return "", err
	}
	return m.sign(Claims{UserID: userID, Type: TypeRefresh, Nonce: nonce}, expiresAt)
}

func (m *Manager) IssueChallenge(userID string) (string, error) {
	return m.sign(Claims{UserID: userID, Type: TypeChallenge}, m.now().Add(m.config.ChallengeTTL))
}

func (m *Manager) ParseAccess(tokenString string) (*Claims, error) {
	return m.parse(tokenString, TypeAccess)
}

// ParseRefresh verifies signature and expiry. A signed but expired token
// yields ErrExpiredToken so callers can tell it apart from forged input.
func (m *Manager) ParseRefresh(tokenString string) (*Claims, error) {
	return m.parse(tokenString, TypeRefresh)
}

func (m *Manager) ParseChallenge(tokenString string) (*Claims, error) {
	return m.parse(tokenString, TypeChallenge)
}

func (m *Manager) sign(claims Claims, expiresAt time.Time) (string, error) {
	now := m.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   claims.UserID,
		Issuer:    m.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.Secret)
}

func (m *Manager) parse(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && claims.UserID != "" {
			return claims, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != wantType {
		return nil, ErrWrongType
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
