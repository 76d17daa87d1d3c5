// Package httpapi exposes the vault over a JSON/multipart HTTP API.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/healthvault/internal/logging"
	"github.com/dmitrijs2005/healthvault/internal/server/services"
)

// Limiter throttles calls per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Pinger reports whether the Record Store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the routes. Limiter may be nil.
type Deps struct {
	Users          *services.UserService
	Reports        *services.ReportService
	Vitals         *services.VitalService
	Sharing        *services.SharingService
	Store          Pinger
	Limiter        Limiter
	MaxUploadBytes int64
}

type Server struct {
	address string
	deps    Deps
	logger  logging.Logger
	router  chi.Router
}

const fileURLTTL = 15 * time.Minute

func NewServer(address string, l logging.Logger, d Deps) *Server {
	s := &Server{
		address: address,
		deps:    d,
		logger:  l.With("module", "http_server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(s.rateLimited).Post("/register", s.handleRegister)
			r.With(s.rateLimited).Post("/login", s.handleLogin)
			r.With(s.rateLimited).Post("/refresh", s.handleRefresh)
			r.With(s.authenticated).Delete("/account", s.handleDeleteAccount)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticated)

			r.Route("/reports", func(r chi.Router) {
				r.Post("/upload", s.handleUploadReport)
				r.Get("/", s.handleListReports)
				r.Get("/search", s.handleSearchReports)
				r.Get("/{id}", s.handleGetReport)
				r.Get("/{id}/file", s.handleReportFile)
				r.Delete("/{id}", s.handleDeleteReport)
			})

			r.Route("/vitals", func(r chi.Router) {
				r.Post("/", s.handleAddVital)
				r.Get("/report/{reportId}", s.handleListVitals)
				r.Get("/trends", s.handleTrends)
				r.Get("/summary", s.handleSummary)
				r.Delete("/{id}", s.handleDeleteVital)
			})

			r.Route("/sharing", func(r chi.Router) {
				r.Post("/share", s.handleShare)
				r.Delete("/share/{shareId}", s.handleRevoke)
				r.Get("/received", s.handleReceived)
				r.Get("/sent", s.handleSent)
				r.Get("/report/{reportId}", s.handleSharesForReport)
			})
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		s.logger.Warn(r.Context(), "store ping failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
