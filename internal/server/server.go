// Package server hosts the HTTP and WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openquorum/resolved/internal/domain"
	"github.com/openquorum/resolved/internal/server/handler"
	"github.com/openquorum/resolved/internal/server/middleware"
	"github.com/openquorum/resolved/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is requests per client per RateWindow; zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Topics     *handler.TopicHandler
	Resolution *handler.ResolutionHandler
}

// Server is the headless HTTP + WebSocket API server for the resolution
// engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. limiter may be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Topic endpoints.
	mux.HandleFunc("POST /api/topics", handlers.Topics.OpenTopic)
	mux.HandleFunc("GET /api/topics", handlers.Topics.ListTopics)
	mux.HandleFunc("GET /api/topics/{id}", handlers.Topics.GetTopic)
	mux.HandleFunc("GET /api/topics/{id}/events", handlers.Topics.ListEvents)

	// Resolution lifecycle endpoints.
	mux.HandleFunc("POST /api/topics/{id}/bets", handlers.Resolution.PlaceBet)
	mux.HandleFunc("POST /api/topics/{id}/report", handlers.Resolution.SubmitReport)
	mux.HandleFunc("POST /api/topics/{id}/votes", handlers.Resolution.CastVote)
	mux.HandleFunc("POST /api/topics/{id}/force-resolve", handlers.Resolution.ForceResolve)
	mux.HandleFunc("POST /api/topics/{id}/invalidate", handlers.Resolution.InvalidateRound)
	mux.HandleFunc("POST /api/topics/{id}/finalize", handlers.Resolution.Finalize)
	mux.HandleFunc("POST /api/topics/{id}/withdrawals", handlers.Resolution.Withdraw)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
