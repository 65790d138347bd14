package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/auth"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_request"})
}

// writeError maps a service error to its HTTP status and body. Unknown errors
// are logged and reported as internal without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorStatus(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	if body.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	} else if body.WaitSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.WaitSeconds))
	}
	writeJSON(w, status, body)
}

func errorStatus(err error) (int, errorResponse) {
	body := errorResponse{Error: err.Error(), RequiresReauth: auth.RequiresReauth(err)}

	var lockout *auth.LockoutError
	var resend *auth.ResendError
	switch {
	case errors.As(err, &lockout):
		body.Code = "account_locked"
		if errors.Is(err, auth.ErrOriginBlocked) {
			body.Code = "origin_blocked"
		}
		body.RetryAfter = lockout.RetryAfterSeconds()
		return http.StatusTooManyRequests, body
	case errors.Is(err, auth.ErrAccountLocked):
		body.Code = "account_locked"
		return http.StatusTooManyRequests, body
	case errors.As(err, &resend):
		body.Code = "resend_too_soon"
		body.WaitSeconds = resend.WaitSeconds
		return http.StatusTooManyRequests, body
	case errors.Is(err, auth.ErrInvalidCredentials):
		body.Code = "invalid_credentials"
		return http.StatusUnauthorized, body
	case errors.Is(err, auth.ErrSessionRevokedForSecurity):
		body.Code = "session_revoked"
		return http.StatusUnauthorized, body
	case errors.Is(err, auth.ErrInvalidOrExpiredToken), errors.Is(err, auth.ErrUserNotFound):
		body.Code = "invalid_token"
		body.Error = auth.ErrInvalidOrExpiredToken.Error()
		return http.StatusUnauthorized, body
	case errors.Is(err, auth.ErrAccountDisabled):
		body.Code = "account_disabled"
		return http.StatusForbidden, body
	case errors.Is(err, auth.ErrRegistrationClosed):
		body.Code = "registration_closed"
		return http.StatusForbidden, body
	case errors.Is(err, auth.ErrIdentifierTaken):
		body.Code = "identifier_taken"
		return http.StatusConflict, body
	case errors.Is(err, auth.ErrTwoFactorNotEnabled):
		body.Code = "two_factor_not_enabled"
		return http.StatusConflict, body
	case errors.Is(err, auth.ErrTwoFactorAlreadyEnabled):
		body.Code = "two_factor_already_enabled"
		return http.StatusConflict, body
	case errors.Is(err, auth.ErrInvalidPurpose):
		body.Code = "invalid_request"
		return http.StatusBadRequest, body
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, errorResponse{Error: "service temporarily unavailable", Code: "unavailable"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"}
	}
}
