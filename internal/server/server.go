// Package server exposes the dispatcher over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/hession/calcmate/internal/audit"
	"github.com/hession/calcmate/internal/config"
	"github.com/hession/calcmate/internal/dispatch"
	"github.com/hession/calcmate/internal/logger"
)

const (
	defaultMaxBodyBytes = 1 << 20

	defaultMaxRateLimitClients = 10000
	defaultAuditLimit   = 20
	maxAuditLimit       = 1000
)

// Server HTTP transport for the dispatcher
type Server struct {
	dispatcher   *dispatch.Dispatcher
	router       *mux.Router
	handler      http.Handler
	store        audit.Store
	auditLimit   int
	version      string
	corsOrigins  []string
	limiter      *clientLimiter
	rateLimit    rateLimitOptions
	proxies      trustedProxies
	maxBodyBytes int64
}

type rateLimitOptions struct {
	rps        float64
	burst      int
	maxClients int
}

// Option configures the Server instance.
type Option func(*Server)

// WithAuditStore records every invocation in store and enables the /audit endpoints.
func WithAuditStore(store audit.Store, defaultLimit int) Option {
	return func(s *Server) {
		s.store = store
		if defaultLimit > 0 {
			s.auditLimit = defaultLimit
		}
	}
}

// WithVersion sets the version reported by GET /.
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// WithCORSOrigins sets the allowed CORS origins; "*" allows any.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithRateLimit limits each client IP to rps requests per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.rateLimit.rps = rps
		s.rateLimit.burst = burst
	}
}

// WithRateLimitClients caps how many client buckets the limiter keeps;
// the least recently seen client is dropped when the cap is reached.
func WithRateLimitClients(n int) Option {
	return func(s *Server) { s.rateLimit.maxClients = n }
}

// WithTrustedProxies lists the peers (addresses or CIDR ranges) whose
// X-Forwarded-For and X-Real-IP headers name the client. Without it the
// peer address is the client. Invalid entries are logged and skipped.
func WithTrustedProxies(entries []string) Option {
	return func(s *Server) {
		s.proxies = s.proxies[:0]
		for _, entry := range entries {
			proxies, err := parseTrustedProxies([]string{entry})
			if err != nil {
				logger.Warn("Ignoring trusted proxy: %v", err)
				continue
			}
			s.proxies = append(s.proxies, proxies...)
		}
	}
}

// WithMaxBodyBytes caps request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// New creates a new HTTP server over dispatcher.
func New(dispatcher *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher:   dispatcher,
		router:       mux.NewRouter(),
		auditLimit:   defaultAuditLimit,
		version:      "dev",
		corsOrigins:  []string{"*"},
		maxBodyBytes: defaultMaxBodyBytes,
		rateLimit:    rateLimitOptions{maxClients: defaultMaxRateLimitClients},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.rateLimit.rps > 0 && s.rateLimit.burst > 0 {
		s.limiter = newClientLimiter(s.rateLimit.rps, s.rateLimit.burst, s.rateLimit.maxClients)
	}

	s.registerRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type", RequestIDHeader},
	})

	// outermost first: CORS, request ID, recovery, access log, rate limit
	s.handler = c.Handler(withRequestID(withRecover(s.withAccessLog(s.withRateLimit(s.router)))))
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.handler }

// Run listens on cfg's address until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, cfg config.ServerConfig) error {
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}
	return s.Serve(ctx, ln, cfg)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener, cfg config.ServerConfig) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
		ErrorLog:     log.New(logger.GetWriter(logger.ERROR), "http: ", 0),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve HTTP: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// registerRoutes sets up all REST endpoints.
func (s *Server) registerRoutes() {
	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/tools", s.handleListTools).Methods(http.MethodGet)
	s.router.HandleFunc("/tools/{name}", s.handleCallTool).Methods(http.MethodPost)
	s.router.HandleFunc("/execute", s.handleExecute).Methods(http.MethodPost)

	s.router.HandleFunc("/audit", s.handleAuditRecent).Methods(http.MethodGet)
	s.router.HandleFunc("/audit/summary", s.handleAuditSummary).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, dispatch.Failure(dispatch.InvalidRequest, "no route for %s %s", r.Method, r.URL.Path))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, dispatch.Failure(dispatch.InvalidRequest, "method %s not allowed on %s", r.Method, r.URL.Path))
	})
}
