package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HealthCheck reports whether the service can reach its dependencies.
type HealthCheck func(ctx context.Context) error

type RouterOptions struct {
	Health         HealthCheck
	Metrics        http.Handler
	MetricsPath    string
	HealthDeadline time.Duration
}

func NewRouter(h *Handler, opts RouterOptions, log *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestLogger(log))

	router.HandleFunc("/healthz", healthHandler(opts)).Methods(http.MethodGet)
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, opts.Metrics).Methods(http.MethodGet)
	}

	h.Register(router)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", Code: "not_found"})
	})
	return router
}

func healthHandler(opts RouterOptions) http.HandlerFunc {
	deadline := opts.HealthDeadline
	if deadline <= 0 {
		deadline = 2 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if opts.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), deadline)
			defer cancel()
			if err := opts.Health(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
