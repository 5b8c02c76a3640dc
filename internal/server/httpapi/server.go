// Package httpapi exposes the authentication engine over HTTP/JSON under
// /auth, together with /healthz and /metrics.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/sso/internal/logging"
	"github.com/dmitrijs2005/sso/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

const shutdownTimeout = 10 * time.Second

// HealthChecker reports whether dependencies are reachable.
type HealthChecker func(ctx context.Context) error

type Server struct {
	address  string
	auth     services.Authenticator
	logger   logging.Logger
	validate *validator.Validate
	metrics  http.Handler
	health   HealthChecker
}

type Option func(*Server)

// WithMetrics mounts h at GET /metrics.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithHealth makes /healthz answer 503 while check fails.
func WithHealth(check HealthChecker) Option { return func(s *Server) { s.health = check } }

func NewServer(address string, a services.Authenticator, l logging.Logger, opts ...Option) *Server {
	s := &Server{
		address:  address,
		auth:     a,
		logger:   l.With("module", "http_server"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, envelope{Message: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusMethodNotAllowed, envelope{Message: "method not allowed"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.register)
		r.Post("/login", s.login)
		r.Post("/check_token", s.checkToken)
		r.Post("/refresh_token", s.refreshToken)
		r.Post("/send_email_recover_password", s.sendRecoveryEmail)
		r.Post("/password_change", s.changePassword)
	})

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn(r.Context(), "health check failed", "error", err)
			writeEnvelope(w, http.StatusServiceUnavailable, envelope{Message: "unavailable"})
			return
		}
	}
	writeEnvelope(w, http.StatusOK, envelope{Success: true, Message: "ok"})
}
