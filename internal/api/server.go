package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/marcus/dealbook/internal/serverdb"
)

// Server is the HTTP document store server.
type Server struct {
	config      Config
	http        *http.Server
	store       *serverdb.ServerDB
	metrics     *Metrics
	rateLimiter *RateLimiter
	cancel      context.CancelFunc
	addr        net.Addr
}

// NewServer creates a new Server with the given config and store.
func NewServer(cfg Config, store *serverdb.ServerDB) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("nil store")
	}
	if cfg.MaxDocBytes <= 0 {
		cfg.MaxDocBytes = DefaultConfig().MaxDocBytes
	}
	if cfg.RateLimitWrite <= 0 {
		cfg.RateLimitWrite = DefaultConfig().RateLimitWrite
	}
	if cfg.RateLimitRead <= 0 {
		cfg.RateLimitRead = DefaultConfig().RateLimitRead
	}

	s := &Server{
		config:      cfg,
		store:       store,
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(),
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler returns the server's full handler chain.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Addr returns the bound address after Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.addr = ln.Addr()

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("rate limiter cleanup panic", "panic", r)
			}
		}()
		s.rateLimiter.Run(ctx, 5*time.Minute)
	}()

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.http.Shutdown(ctx)
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Documents
	mux.HandleFunc("GET /v1/docs/{key}", s.withRateLimit(s.handleGetDoc, s.config.RateLimitRead))
	mux.HandleFunc("PUT /v1/docs/{key}", s.withRateLimit(s.handlePutDoc, s.config.RateLimitWrite))
	mux.HandleFunc("GET /v1/docs/{key}/writes", s.withRateLimit(s.handleListWrites, s.config.RateLimitRead))

	return chain(mux, recoveryMiddleware, requestIDMiddleware, loggerMiddleware, metricsMiddleware(s.metrics), loggingMiddleware, corsMiddleware(s.config.CORSAllowedOrigins), maxBytesMiddleware(s.config.MaxDocBytes))
}

// handleHealth returns a health check response, pinging the database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
