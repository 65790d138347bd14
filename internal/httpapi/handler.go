// Package httpapi exposes the auth service over JSON/HTTP.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/auth"
)

const refreshTokenHeader = "X-Refresh-Token"

type HandlerConfig struct {
	TrustProxy    bool
	SecureCookies bool
	DeviceCookie  string
}

type Handler struct {
	svc      *auth.Service
	authn    *auth.AuthMiddleware
	validate *requestValidator
	config   HandlerConfig
	log      *zap.Logger
}

func NewHandler(svc *auth.Service, authn *auth.AuthMiddleware, config HandlerConfig, log *zap.Logger) *Handler {
	if config.DeviceCookie == "" {
		config.DeviceCookie = "scribe_device"
	}
	return &Handler{
		svc:      svc,
		authn:    authn,
		validate: newRequestValidator(),
		config:   config,
		log:      log,
	}
}

// Register mounts the auth routes on router.
func (h *Handler) Register(router *mux.Router) {
	public := router.PathPrefix("/v1/auth").Subrouter()
	public.HandleFunc("/register", h.register).Methods(http.MethodPost)
	public.HandleFunc("/login", h.login).Methods(http.MethodPost)
	public.HandleFunc("/2fa/send", h.sendCode).Methods(http.MethodPost)
	public.HandleFunc("/2fa/verify", h.verifySecondFactor).Methods(http.MethodPost)
	public.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	public.HandleFunc("/logout", h.logout).Methods(http.MethodPost)

	protected := router.PathPrefix("/v1/auth").Subrouter()
	protected.Use(h.requireAuth)
	protected.HandleFunc("/logout-all", h.logoutAll).Methods(http.MethodPost)
	protected.HandleFunc("/sessions", h.listSessions).Methods(http.MethodGet)
	protected.HandleFunc("/sessions/revoke-others", h.revokeOtherSessions).Methods(http.MethodPost)
	protected.HandleFunc("/sessions/{id}", h.revokeSession).Methods(http.MethodDelete)
	protected.HandleFunc("/devices", h.listDevices).Methods(http.MethodGet)
	protected.HandleFunc("/devices", h.revokeAllDevices).Methods(http.MethodDelete)
	protected.HandleFunc("/devices/{id}", h.revokeDevice).Methods(http.MethodDelete)
	protected.HandleFunc("/2fa/enable", h.enableTwoFactor).Methods(http.MethodPost)
	protected.HandleFunc("/2fa/disable", h.disableTwoFactor).Methods(http.MethodPost)
	protected.HandleFunc("/2fa/recovery-codes", h.remainingRecoveryCodes).Methods(http.MethodGet)
	protected.HandleFunc("/2fa/recovery-codes", h.regenerateRecoveryCodes).Methods(http.MethodPost)
	protected.HandleFunc("/password", h.changePassword).Methods(http.MethodPost)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.validate.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	tokens, err := h.svc.Register(r.Context(), auth.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		RememberMe:  req.RememberMe,
	}, h.clientMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTokenResponse(tokens))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.validate.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	result, err := h.svc.Login(r.Context(), auth.Credentials{
		Identifier: req.Identifier,
		Secret:     req.Password,
		RememberMe: req.RememberMe,
	}, h.clientMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if result.SecondFactor != nil {
		writeJSON(w, http.StatusOK, loginResponse{
			SecondFactorRequired: true,
			Challenge:            result.SecondFactor.Challenge,
		})
		return
	}
	writeJSON(w, http.StatusOK, toLoginResponse(result.Tokens))
}

// sendCode mails a one-time code. Login codes are requested with the
// challenge from /login; the other purposes need a signed-in user.
func (h *Handler) sendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := h.validate.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	purpose, err := auth.ParsePurpose(req.Purpose)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var userID string
	if purpose == auth.PurposeLogin {
		userID, err = h.svc.ResolveChallenge(req.Challenge)
	} else {
		var p auth.Principal
		p, err = h.authn.Authenticate(r.Context(), r.Header.Get("Authorization"))
		userID = p.UserID
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.SendOTP(r.Context(), userID, purpose)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sendCodeResponse{Sent: result.Sent})
}

func (h *Handler) verifySecondFactor(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := h.validate.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	userID, err := h.svc.ResolveChallenge(req.Challenge)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.VerifySecondFactor(r.Context(), auth.SecondFactorRequest{
		UserID:         userID,
		Code:           req.Code,
		IsRecoveryCode: req.RecoveryCode,
		TrustDevice:    req.TrustDevice,
		RememberMe:     req.RememberMe,
		DeviceLabel:    req.DeviceLabel,
	}, h.clientMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if result.DeviceToken != "" {
		h.setDeviceCookie(w, result.DeviceToken, result.DeviceExpiresAt)
	}
	writeJSON(w, http.StatusOK, toTokenResponse(result.Tokens))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := h.validate.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	tokens, err := h.svc.Refresh(r.Context(), req.RefreshToken, h.clientMeta(r))
	if err != nil {
		if auth.IsSecurityRevocation(err) {
			h.clearDeviceCookie(w)
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(tokens))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := h.validate.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.LogoutAll(r.Context(), principal(r).UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.clearDeviceCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListSessions(r.Context(), principal(r).UserID, r.Header.Get(refreshTokenHeader))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponses(views))
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	ok, err := h.svc.RevokeSession(r.Context(), mux.Vars(r)["id"], principal(r).UserID)
	h.writeRevoked(w, r, ok, err)
}

func (h *Handler) revokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := h.validate.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	n, err := h.svc.RevokeOtherSessions(r.Context(), principal(r).UserID, req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Revoked: n})
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListTrustedDevices(r.Context(), principal(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceResponses(views))
}

func (h *Handler) revokeDevice(w http.ResponseWriter, r *http.Request) {
	ok, err := h.svc.RevokeTrustedDevice(r.Context(), mux.Vars(r)["id"], principal(r).UserID)
	h.writeRevoked(w, r, ok, err)
}

func (h *Handler) revokeAllDevices(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RevokeAllTrustedDevices(r.Context(), principal(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.clearDeviceCookie(w)
	writeJSON(w, http.StatusOK, countResponse{Revoked: n})
}

func (h *Handler) writeRevoked(w http.ResponseWriter, r *http.Request, ok bool, err error) {
	switch {
	case err != nil:
		h.writeError(w, r, err)
	case !ok:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", Code: "not_found"})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) enableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req enableRequest
	if err := h.validate.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	codes, err := h.svc.EnableTwoFactor(r.Context(), principal(r).UserID, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recoveryCodesResponse{RecoveryCodes: codes})
}

func (h *Handler) disableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req disableRequest
	if err := h.validate.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := h.svc.DisableTwoFactor(r.Context(), principal(r).UserID, req.Password, req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.clearDeviceCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) remainingRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RemainingRecoveryCodes(r.Context(), principal(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, remainingResponse{Remaining: n})
}

func (h *Handler) regenerateRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := h.validate.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	codes, err := h.svc.RegenerateRecoveryCodes(r.Context(), principal(r).UserID, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recoveryCodesResponse{RecoveryCodes: codes})
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := h.validate.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), principal(r).UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.clearDeviceCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
