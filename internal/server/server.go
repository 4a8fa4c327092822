// Package server exposes the Nina HTTP surface: the /voice WebSocket endpoint
// that carries assistant sessions, health probes, and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/saberesdafloresta/nina/internal/health"
	"github.com/saberesdafloresta/nina/internal/observe"
	"github.com/saberesdafloresta/nina/internal/session"
)

// defaultShutdownTimeout bounds graceful shutdown once the run context ends.
const defaultShutdownTimeout = 15 * time.Second

// Config assembles everything the server needs to accept voice sessions.
type Config struct {
	// ListenAddr is the TCP address to listen on (e.g., ":8080").
	ListenAddr string

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string

	// AllowedOrigins lists host patterns (e.g., "app.example.com",
	// "*.example.com") accepted for cross-origin WebSocket upgrades on
	// /voice. Empty permits same-origin browsers only. Non-browser clients
	// send no Origin header and are always accepted.
	AllowedOrigins []string

	// Adapters are the shared pipeline backends handed to every session.
	Adapters session.Adapters

	// Session is the per-session configuration template.
	Session session.Config

	// Authorizer validates session tokens on /voice. Nil accepts every
	// connection anonymously.
	Authorizer Authorizer

	// Checkers feed the /readyz readiness probe.
	Checkers []health.Checker

	// ShutdownTimeout bounds graceful shutdown. Zero selects 15s.
	ShutdownTimeout time.Duration

	// Metrics receives server instrumentation. Nil selects
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger receives server logs. Nil selects slog.Default.
	Logger *slog.Logger
}

// Server accepts client connections and runs one voice session per connection.
type Server struct {
	cfg     Config
	httpSrv *http.Server
	metrics *observe.Metrics
	log     *slog.Logger

	// nextSessionID numbers sessions for log correlation.
	nextSessionID atomic.Uint64

	// sessions counts live voice sessions so shutdown can wait for them.
	// drain is closed to cancel the contexts of sessions that outlive the
	// shutdown grace period.
	sessions  sync.WaitGroup
	drain     chan struct{}
	drainOnce sync.Once
}

// New wires the HTTP mux and returns a server ready to Run.
func New(cfg Config) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		metrics: metrics,
		log:     logger,
		drain:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /voice", s.handleVoice)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(cfg.Checkers...).Register(mux)

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down: the listener stops
// accepting connections, and sessions in flight get the remainder of
// ShutdownTimeout to finish streaming before their contexts are cancelled.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("listening", "addr", s.cfg.ListenAddr, "tls", s.cfg.CertFile != "")
		var err error
		if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
			err = s.httpSrv.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen on %q: %w", s.cfg.ListenAddr, err)
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		s.log.Info("shutting down", "timeout", s.cfg.ShutdownTimeout)
		err := s.httpSrv.Shutdown(shutdownCtx)

		// WebSocket upgrades hijack their connections, so Shutdown neither
		// waits for nor closes live sessions. Drain them separately.
		s.drainSessions(shutdownCtx)

		if err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// sessionContext derives the context governing one voice session. It ends
// when the client request ends or when shutdown stops waiting for the
// session.
func (s *Server) sessionContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-s.drain:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// drainSessions blocks until every live session has unwound. Sessions still
// running when ctx expires get their contexts cancelled, which aborts any
// in-flight pipeline run and closes the connection.
func (s *Server) drainSessions(ctx context.Context) {
	idle := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(idle)
	}()

	select {
	case <-idle:
	case <-ctx.Done():
		s.log.Warn("shutdown grace period expired, cancelling live sessions")
		s.drainOnce.Do(func() { close(s.drain) })
		<-idle
	}
}
