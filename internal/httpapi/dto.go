package httpapi

import (
	"time"

	"github.com/elskow/scribe/internal/auth"
)

type registerRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=256"`
	DisplayName string `json:"display_name" validate:"max=100"`
	RememberMe  bool   `json:"remember_me"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=256"`
	RememberMe bool   `json:"remember_me"`
}

type sendCodeRequest struct {
	Purpose   string `json:"purpose" validate:"required,oneof=login enable_2fa disable_2fa"`
	Challenge string `json:"challenge"`
}

type verifyRequest struct {
	Challenge    string `json:"challenge" validate:"required"`
	Code         string `json:"code" validate:"required,max=64"`
	RecoveryCode bool   `json:"recovery_code"`
	TrustDevice  bool   `json:"trust_device"`
	RememberMe   bool   `json:"remember_me"`
	DeviceLabel  string `json:"device_label" validate:"max=64"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type enableRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type disableRequest struct {
	Password string `json:"password" validate:"required,max=256"`
	Code     string `json:"code" validate:"required,max=64"`
}

type passwordRequest struct {
	Password string `json:"password" validate:"required,max=256"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=256"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=256"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type"`
}

func toTokenResponse(p *auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
		TokenType:        "Bearer",
	}
}

// loginResponse carries either tokens or a second-factor challenge.
type loginResponse struct {
	SecondFactorRequired bool       `json:"second_factor_required"`
	Challenge            string     `json:"challenge,omitempty"`
	AccessToken          string     `json:"access_token,omitempty"`
	AccessExpiresAt      *time.Time `json:"access_expires_at,omitempty"`
	RefreshToken         string     `json:"refresh_token,omitempty"`
	RefreshExpiresAt     *time.Time `json:"refresh_expires_at,omitempty"`
	TokenType            string     `json:"token_type,omitempty"`
}

func toLoginResponse(p *auth.TokenPair) loginResponse {
	return loginResponse{
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  &p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: &p.RefreshExpiresAt,
		TokenType:        "Bearer",
	}
}

type sendCodeResponse struct {
	Sent bool `json:"sent"`
}

type sessionResponse struct {
	ID            string    `json:"id"`
	UserAgent     string    `json:"user_agent"`
	OriginAddress string    `json:"origin_address"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Current       bool      `json:"current"`
}

func toSessionResponses(views []auth.SessionView) []sessionResponse {
	out := make([]sessionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, sessionResponse{
			ID:            v.ID,
			UserAgent:     v.UserAgent,
			OriginAddress: v.OriginAddress,
			CreatedAt:     v.CreatedAt,
			ExpiresAt:     v.ExpiresAt,
			Current:       v.IsCurrent,
		})
	}
	return out
}

type deviceResponse struct {
	ID            string    `json:"id"`
	Label         string    `json:"label"`
	UserAgent     string    `json:"user_agent"`
	OriginAddress string    `json:"origin_address"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func toDeviceResponses(views []auth.DeviceView) []deviceResponse {
	out := make([]deviceResponse, 0, len(views))
	for _, v := range views {
		out = append(out, deviceResponse{
			ID:            v.ID,
			Label:         v.Label,
			UserAgent:     v.UserAgent,
			OriginAddress: v.OriginAddress,
			CreatedAt:     v.CreatedAt,
			ExpiresAt:     v.ExpiresAt,
		})
	}
	return out
}

type countResponse struct {
	Revoked int64 `json:"revoked"`
}

type recoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

type remainingResponse struct {
	Remaining int64 `json:"remaining"`
}

type errorResponse struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	RetryAfter     int    `json:"retry_after,omitempty"`
	WaitSeconds    int    `json:"wait_seconds,omitempty"`
	RequiresReauth bool   `json:"requires_reauth,omitempty"`
}
