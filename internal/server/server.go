// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jeranaias/devgenius/internal/session"
	"github.com/jeranaias/devgenius/internal/solution"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the HTTP server.
	DefaultPort = 8787

	// MaxRequestBodySize caps JSON request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxUploadSize caps multipart architecture uploads; the image itself
	// is limited to solution.MaxImageSize.
	MaxUploadSize = 6 * 1024 * 1024

	// MaxPromptLength caps a single dialogue message.
	MaxPromptLength = 100000

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// ============================================================================
// SERVER STATS
// ============================================================================

// ServerStats counts requests by outcome.
type ServerStats struct {
	Conversations atomic.Int64
	Turns         atomic.Int64
	Artifacts     atomic.Int64
	Failures      atomic.Int64
	StartTime     time.Time
}

// StatsSnapshot is the JSON form of ServerStats.
type StatsSnapshot struct {
	Conversations  int64  `json:"conversations"`
	Turns          int64  `json:"turns"`
	Artifacts      int64  `json:"artifacts"`
	Failures       int64  `json:"failures"`
	ActiveSessions int    `json:"active_sessions"`
	Uptime         string `json:"uptime"`
}

// NewServerStats starts the uptime clock.
func NewServerStats() *ServerStats {
	return &ServerStats{StartTime: time.Now()}
}

// Uptime returns the time since the server was created.
func (s *ServerStats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// ============================================================================
// SERVER
// ============================================================================

// Options configure the HTTP surface.
type Options struct {
	Host string
	Port int

	// AuthToken enables bearer authentication when set.
	AuthToken string

	// RateLimit is requests per second per IP; 0 disables limiting.
	RateLimit float64
	RateBurst int

	ShutdownTimeout time.Duration
	Version         string

	// Logger receives one line per request. Defaults to log.Default().
	Logger *log.Logger
}

// Server is the HTTP API over a solution.Service.
type Server struct {
	opts     Options
	router   *http.ServeMux
	server   *http.Server
	handler  http.Handler
	limiter  *RateLimiter
	svc      *solution.Service
	sessions *session.Manager
	stats    *ServerStats
}

// New builds the router and middleware chain.
func New(svc *solution.Service, sessions *session.Manager, opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := &Server{
		opts:     opts,
		router:   http.NewServeMux(),
		svc:      svc,
		sessions: sessions,
		stats:    NewServerStats(),
	}
	s.setupRoutes()

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(opts.Logger),
	}
	if opts.RateLimit > 0 {
		s.limiter = NewRateLimiter(opts.RateLimit, opts.RateBurst, 0)
		middlewares = append(middlewares, RateLimitMiddleware(s.limiter))
	}
	middlewares = append(middlewares, AuthMiddleware(opts.AuthToken))
	s.handler = Chain(middlewares...)(s.router)
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, fmt.Sprint(s.opts.Port))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /v1/conversations", s.handleCreateConversation)
	s.router.HandleFunc("GET /v1/conversations/{id}", s.handleGetConversation)
	s.router.HandleFunc("POST /v1/conversations/{id}/messages", s.handleMessage)
	s.router.HandleFunc("POST /v1/conversations/{id}/analysis", s.handleAnalysis)
	s.router.HandleFunc("POST /v1/conversations/{id}/artifacts/{kind}", s.handleArtifact)
	s.router.HandleFunc("POST /v1/conversations/{id}/feedback", s.handleFeedback)
	s.router.HandleFunc("GET /v1/conversations/{id}/bundle", s.handleBundle)
	s.router.HandleFunc("GET /v1/conversations/{id}/transcript", s.handleTranscript)
	s.router.HandleFunc("GET /v1/conversations/{id}/ledger", s.handleLedger)
	s.router.HandleFunc("GET /v1/topics", s.handleTopics)

	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /stats", s.handleStats)
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Run serves until ctx is cancelled, then shuts down gracefully. The session
// sweeper and rate-limiter cleanup run for the lifetime of the server.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bg, stop := context.WithCancel(ctx)
	defer stop()
	go s.sessions.Run(bg)
	if s.limiter != nil {
		go s.sweepLimiter(bg)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("SERVER_START | addr=%s version=%s auth=%t", s.server.Addr, s.opts.Version, s.opts.AuthToken != "")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | sessions=%d", s.sessions.Len())
	return s.server.Shutdown(ctx)
}

func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Sweep()
		}
	}
}

// ============================================================================
// HELPERS
// ============================================================================

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message   string `json:"message"`
	Code      int    `json:"code"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("RESPONSE_WRITE_FAILED | error=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, retryable bool) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: message, Code: status, Retryable: retryable}})
}

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
