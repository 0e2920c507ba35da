package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/relicta-tech/launchpad/internal/httpserver/middleware"
)

// setupRouter configures the Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders())
	r.Use(s.corsMiddleware())

	// Health check and metrics (unauthenticated)
	r.Get("/health", s.handlers.Health)
	if s.config.Metrics && s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handlers.Health)

		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.Handler)
			}
			r.Use(middleware.Auth(s.config.APIKeys))

			r.Route("/publish", func(r chi.Router) {
				r.Post("/", s.handlers.Publish)
				r.Post("/precheck", s.handlers.PreCheck)
				r.Post("/external", s.handlers.PublishExternal)
			})

			r.Post("/builds/callback", s.handlers.BuildCallback)

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/{id}", s.handlers.TaskDetail)
				r.Put("/{id}/status", s.handlers.UpdateStatus)
				r.Put("/{id}/artifact", s.handlers.RecordArtifact)
				r.Get("/external/{externalID}/extra", s.handlers.ExternalTaskExtra)
			})

			r.Route("/rollback", func(r chi.Router) {
				r.Post("/", s.handlers.Rollback)
				r.Post("/diff", s.handlers.RollbackDiff)
			})
		})
	})

	return r
}

// corsMiddleware returns configured CORS middleware.
func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	allowedOrigins := s.config.CORSOrigins
	if len(allowedOrigins) == 0 {
		// Default: same-origin only (no CORS headers sent)
		allowedOrigins = []string{}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", "X-API-Key",
			"X-Operator-Id", "X-Operator-Name", "X-Operator-Email",
		},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	})
}
