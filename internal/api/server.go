// Package api exposes the bridge's operational surface over HTTP: the
// plugin WebSocket endpoint, health and status probes, the request
// history, and a server-sent event stream for the watch TUI.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/studiotools/canvas-bridge/internal/auth"
	"github.com/studiotools/canvas-bridge/internal/bridge"
	"github.com/studiotools/canvas-bridge/internal/history"
)

// Config holds HTTP server configuration.
type Config struct {
	Listen string
	// OpsEnabled mounts the protected operational routes (/status,
	// /history, /events). The plugin endpoint and /healthz are always
	// served; the bridge is useless without them.
	OpsEnabled bool
	// Token is the bearer token for the operational endpoints. Empty
	// disables auth, which is acceptable only on loopback listeners.
	Token string
}

// Server serves the HTTP surface. The bridge handler is mounted
// unauthenticated: the plugin connects from the design tool's embedded
// browser, which cannot attach arbitrary headers to a WebSocket dial.
type Server struct {
	config    Config
	bridge    *bridge.Bridge
	history   *history.Store // nil when history is disabled
	events    *EventHub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates the HTTP server. hist may be nil.
func New(config Config, b *bridge.Bridge, hist *history.Store, events *EventHub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		bridge:    b,
		history:   hist,
		events:    events,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start runs the server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /events streams indefinitely and the plugin
		// WebSocket stays open for the life of the session.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("http server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated: ops probe and the plugin's WebSocket endpoint.
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/plugin", s.bridge)

	// Protected operational API.
	if s.config.OpsEnabled {
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/status", s.handleStatus)
			r.Get("/history", s.handleHistory)
			r.Get("/events", s.handleEvents)
		})
	}

	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil && s.config.Token != "" {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if !auth.Authenticate(token, s.config.Token) {
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
