package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/config"
)

type Server struct {
	config *config.HTTPConfig
	log    *zap.Logger
	http   *http.Server
}

func NewServer(cfg *config.HTTPConfig, handler http.Handler, log *zap.Logger) *Server {
	return &Server{
		config: cfg,
		log:    log,
		http: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Listen binds the port so startup fails fast on a conflict; Serve then
// runs until Shutdown.
func (s *Server) Listen() (net.Listener, error) {
	lis, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return lis, nil
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("Starting HTTP server", zap.String("address", lis.Addr().String()))
	if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	return s.http.Shutdown(ctx)
}
