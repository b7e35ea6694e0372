// Package api serves the deployment status over HTTP when the CLI runs
// with --serve. It exposes read-only views; all state changes go through
// the CLI actions.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/HamiGames/Lucid-sub000/internal/core/report"
)

// StatusFunc returns the current deployment report. The server never
// caches; each request sees a fresh snapshot.
type StatusFunc func() report.DeploymentReport

// Server is the read-only status endpoint.
type Server struct {
	addr   string
	status StatusFunc
	logger *slog.Logger
	http   *http.Server
}

// NewServer creates a status server listening on addr.
func NewServer(addr string, status StatusFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:   addr,
		status: status,
		logger: logger.With("component", "api"),
	}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	return r
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("status server listening", "addr", s.addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleHealthz reports the server itself, not the deployment.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// handleStatus renders the deployment report. JSON by default; a text
// rendering is available with ?format=text.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	format := report.FormatJSON
	if r.URL.Query().Get("format") == string(report.FormatText) {
		format = report.FormatText
	}

	rpt := s.status()
	out, err := report.Render(rpt, format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if format == report.FormatJSON {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain")
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(out))
}
