package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/dittoswap/internal/controlplane/api/auth"
	"github.com/marmos91/dittoswap/internal/logger"
)

// drainTimeout is how long in-flight requests get once Serve's context ends.
const drainTimeout = 5 * time.Second

// Server serves the control API until its context is cancelled.
type Server struct {
	srv      *http.Server
	port     int
	jwt      *auth.JWTService
	stopOnce sync.Once
	stopErr  error
}

// NewServer builds a stopped server. A configured JWT secret, from the file
// or EnvControlPlaneSecret, must be at least 32 characters; without one
// every route is open.
func NewServer(config APIConfig, deps Dependencies) (*Server, error) {
	ApplyDefaults(&config)

	s := &Server{port: config.Port}
	if secret := config.JWTSecret(); secret != "" {
		jwt, err := auth.NewJWTService(auth.JWTConfig{
			Secret:        secret,
			TokenDuration: config.JWT.TokenDuration,
			Instance:      deps.Instance,
		})
		if err != nil {
			return nil, fmt.Errorf("control API secret (config or %s): %w", EnvControlPlaneSecret, err)
		}
		s.jwt = jwt
	} else {
		logger.Warn("Control API authentication disabled: no JWT secret configured")
	}

	s.srv = &http.Server{
		Addr:         net.JoinHostPort("", strconv.Itoa(config.Port)),
		Handler:      NewRouter(deps, s.jwt),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

// Start listens on the configured port and calls Serve.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("API server listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve answers requests on ln until ctx is cancelled, then drains and
// returns nil. A failing listener is returned as an error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger.Info("API server listening", logger.Addr(ln.Addr().String()), "auth", s.AuthEnabled())

	failed := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return fmt.Errorf("API server: %w", err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	return s.Stop(drainCtx)
}

// Stop shuts the server down, waiting for in-flight requests until ctx
// ends. Later calls return the first call's result.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if err := s.srv.Shutdown(ctx); err != nil {
			s.stopErr = fmt.Errorf("API server shutdown: %w", err)
			logger.Error("API server shutdown failed", logger.Err(err))
			return
		}
		logger.Info("API server stopped")
	})
	return s.stopErr
}

// Port is the configured TCP port.
func (s *Server) Port() int { return s.port }

// AuthEnabled reports whether routes check bearer tokens.
func (s *Server) AuthEnabled() bool { return s.jwt != nil }
