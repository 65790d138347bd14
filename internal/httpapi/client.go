package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/elskow/scribe/internal/auth"
)

// clientMeta extracts the caller description the auth service records.
// X-Forwarded-For is honored only behind a trusted proxy.
func (h *Handler) clientMeta(r *http.Request) auth.ClientMeta {
	meta := auth.ClientMeta{
		OriginAddress: h.originAddress(r),
		UserAgent:     auth.Truncate(r.UserAgent(), auth.MaxUserAgent),
	}
	if c, err := r.Cookie(h.config.DeviceCookie); err == nil {
		meta.DeviceToken = c.Value
	}
	return meta
}

func (h *Handler) originAddress(r *http.Request) string {
	if h.config.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
			if ip := net.ParseIP(first); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) setDeviceCookie(w http.ResponseWriter, value string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.DeviceCookie,
		Value:    value,
		Path:     "/v1/auth",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearDeviceCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.DeviceCookie,
		Value:    "",
		Path:     "/v1/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
