// Package httpserver provides the HTTP server for the publish API.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/relicta-tech/launchpad/internal/config"
	"github.com/relicta-tech/launchpad/internal/httpserver/handlers"
	"github.com/relicta-tech/launchpad/internal/httpserver/middleware"
)

// Server is the HTTP server for the publish API.
type Server struct {
	config     config.ServerConfig
	handlers   *handlers.Handlers
	metrics    http.Handler
	logger     *slog.Logger
	limiter    *middleware.RateLimiter
	router     chi.Router
	httpServer *http.Server
}

// ServerDeps contains dependencies for creating a new server.
type ServerDeps struct {
	Config   config.ServerConfig
	Handlers *handlers.Handlers
	Metrics  http.Handler // served on /metrics when enabled (optional)
	Logger   *slog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(deps ServerDeps) *Server {
	s := &Server{
		config:   deps.Config,
		handlers: deps.Handlers,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
	if s.handlers == nil {
		s.handlers = handlers.New(handlers.Deps{})
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.config.RateLimitRPM > 0 {
		s.limiter = middleware.NewRateLimiter(s.config.RateLimitRPM)
	}

	s.router = s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.getReadTimeout(),
		WriteTimeout: s.getWriteTimeout(),
		IdleTimeout:  s.getIdleTimeout(),
	}

	return s
}

// Start serves until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.logger.Info("http server listening", "address", listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		// The original context is canceled; shut down on a fresh one.
		return s.Shutdown(context.Background()) //nolint:contextcheck
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.getShutdownTimeout())
	defer cancel()

	if s.limiter != nil {
		_ = s.limiter.Close()
	}
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address
}

func (s *Server) getReadTimeout() time.Duration {
	if s.config.ReadTimeout > 0 {
		return s.config.ReadTimeout
	}
	return 15 * time.Second
}

func (s *Server) getWriteTimeout() time.Duration {
	if s.config.WriteTimeout > 0 {
		return s.config.WriteTimeout
	}
	return 30 * time.Second
}

func (s *Server) getIdleTimeout() time.Duration {
	if s.config.IdleTimeout > 0 {
		return s.config.IdleTimeout
	}
	return 60 * time.Second
}

func (s *Server) getShutdownTimeout() time.Duration {
	if s.config.ShutdownTimeout > 0 {
		return s.config.ShutdownTimeout
	}
	return 30 * time.Second
}
