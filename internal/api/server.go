// Package api implements the admin HTTP API: login, active call inspection,
// call log queries, voicemail management and Prometheus metrics.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autovox/autovox/internal/api/middleware"
	"github.com/autovox/autovox/internal/call"
	"github.com/autovox/autovox/internal/config"
	"github.com/autovox/autovox/internal/database"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router    *chi.Mux
	cfg       *config.Config
	registry  *call.Registry
	callLog   database.CallLogRepository
	voicemail database.VoicemailMessageRepository
	events    *StatusHistory
	jwtSecret []byte
	limiter   *middleware.IPRateLimiter
	gatherer  prometheus.Gatherer
	startTime time.Time
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(
	cfg *config.Config,
	registry *call.Registry,
	callLog database.CallLogRepository,
	voicemail database.VoicemailMessageRepository,
	events *StatusHistory,
	gatherer prometheus.Gatherer,
) (*Server, error) {
	secret, err := cfg.JWTSecretBytes()
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:    chi.NewRouter(),
		cfg:       cfg,
		registry:  registry,
		callLog:   callLog,
		voicemail: voicemail,
		events:    events,
		jwtSecret: secret,
		limiter:   middleware.NewIPRateLimiter(middleware.AuthRateLimitConfig()),
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background goroutines owned by the server.
func (s *Server) Close() {
	s.limiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.StructuredLogger)

	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.With(middleware.RateLimit(s.limiter)).
			Post("/auth/login", s.handleLogin)

		// Authenticated admin routes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.jwtSecret))

			r.Get("/system/status", s.handleSystemStatus)
			r.Get("/calls/active", s.handleActiveCalls)
			r.Get("/calls/events", s.handleCallEvents)
			r.Get("/call-log", s.handleCallLog)

			r.Route("/voicemail", func(r chi.Router) {
				r.Get("/", s.handleVoicemailList)
				r.Route("/{id}", func(r chi.Router) {
					r.Put("/read", s.handleVoicemailMarkRead)
					r.Delete("/", s.handleVoicemailDelete)
					r.Get("/audio", s.handleVoicemailAudio)
				})
			})
		})
	})

	slog.Info("api routes mounted")
}
