// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes sessions, stateless answers and document operations
// over a JSON HTTP API.
//
// Routes:
//   - POST   /api/v1/sessions               → create a session
//   - GET    /api/v1/sessions               → list sessions
//   - GET    /api/v1/sessions/{id}          → session snapshot
//   - POST   /api/v1/sessions/{id}/messages → ask within a session
//   - POST   /api/v1/sessions/{id}/reset    → reset to the greeting
//   - DELETE /api/v1/sessions/{id}          → drop a session
//   - POST   /api/v1/ask                    → stateless repository answer
//   - POST   /api/v1/documents/summary      → summarize an upload
//   - POST   /api/v1/documents/citation     → cite an upload
//   - POST   /api/v1/documents              → ingest an upload
//   - GET    /health, GET /metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/fosrc/pkg/auth"
	"github.com/kadirpekel/fosrc/pkg/builder"
	"github.com/kadirpekel/fosrc/pkg/config"
	"github.com/kadirpekel/fosrc/pkg/ratelimit"
)

// Server serves one App. The App can be replaced while running.
type Server struct {
	cfg       config.ServerConfig
	validator *auth.Validator
	roles     []string
	limiter   *ratelimit.Limiter
	render    *Renderer

	app    atomic.Pointer[builder.App]
	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithAuth requires a valid bearer token, and one of roles when given, on
// every /api/v1 route.
func WithAuth(v *auth.Validator, roles ...string) Option {
	return func(s *Server) {
		s.validator = v
		s.roles = roles
	}
}

// WithRateLimit applies per-client quotas to /api/v1. Answer routes charge
// the turn's model tokens to the caller.
func WithRateLimit(l *ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

func NewServer(cfg config.ServerConfig, app *builder.App, opts ...Option) *Server {
	cfg.SetDefaults()
	s := &Server{cfg: cfg, render: NewRenderer()}
	for _, opt := range opts {
		opt(s)
	}
	s.app.Store(app)
	return s
}

// App returns the application currently served.
func (s *Server) App() *builder.App { return s.app.Load() }

// Swap replaces the served application and returns the previous one. In-flight
// requests finish on the old App; the caller closes it.
func (s *Server) Swap(app *builder.App) *builder.App {
	old := s.app.Swap(app)
	slog.Info("Application swapped")
	return old
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Order: logging -> metrics -> cors -> routes (auth, quota on /api only)
	r.Use(loggingMiddleware)
	r.Use(metricsMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		if s.validator != nil {
			r.Use(auth.Middleware(s.validator, s.roles...))
		}
		r.Use(ratelimit.Middleware(s.limiter, ratelimit.ClientIdentity))

		r.Post("/ask", s.handleAsk)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)
			r.Get("/{id}", s.handleGetSession)
			r.Delete("/{id}", s.handleDeleteSession)
			r.Post("/{id}/messages", s.handleSessionMessage)
			r.Post("/{id}/reset", s.handleResetSession)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.handleIngestDocument)
			r.Post("/summary", s.handleSummarize)
			r.Post("/citation", s.handleCite)
		})
	})

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  2 * time.Minute,
	}

	slog.Info("HTTP server starting", "address", s.cfg.Address(),
		"auth", s.validator != nil, "rate_limit", s.limiter != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}

// Address returns the listen address.
func (s *Server) Address() string { return s.cfg.Address() }
