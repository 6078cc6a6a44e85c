// Package server receives webhook callbacks and dispatches them to hooks.
//
// DESIGN: One HTTP handler, wrapped by middleware (applied outermost first):
//  1. panicRecovery:     Catch panics, return 500, log stack trace
//  2. loggingMiddleware: Request IDs, request/response logging, metrics
//  3. handleHook:        Method check, hook match, body parse, dispatch
//
// The protocol is fire-and-forget: the status code reflects whether the hook
// was admitted, never how it finished. Execution outcomes go to logs,
// metrics and telemetry only.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/cptn-hooks/cptn/internal/config"
	"github.com/cptn-hooks/cptn/internal/hooks"
	"github.com/cptn-hooks/cptn/internal/listener"
	"github.com/cptn-hooks/cptn/internal/monitoring"
	"github.com/cptn-hooks/cptn/internal/store"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

// Server is the webhook listener.
type Server struct {
	config   *config.Config
	registry *hooks.Registry

	logger        *monitoring.Logger
	requestLogger *monitoring.RequestLogger
	alerts        *monitoring.AlertManager
	metrics       *monitoring.MetricsCollector
	tracker       *monitoring.Tracker
	ledger        store.Ledger

	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// New creates a server for registry. logger may be nil, in which case
// nothing is logged.
func New(cfg *config.Config, registry *hooks.Registry, logger *monitoring.Logger) (*Server, error) {
	if logger == nil {
		logger = monitoring.Nop()
	}

	tracker, err := monitoring.NewTracker(cfg.Monitoring.TelemetryConfig())
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:        cfg,
		registry:      registry,
		logger:        logger,
		requestLogger: monitoring.NewRequestLogger(logger),
		alerts:        monitoring.NewAlertManager(logger, cfg.Monitoring.AlertConfig()),
		metrics:       monitoring.NewMetricsCollector(),
		tracker:       tracker,
	}
	if cfg.Dedupe.Enabled() {
		s.ledger = store.NewMemoryLedger(cfg.Dedupe.TTL)
	}

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s, nil
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(s.handleHook)
	h = s.loggingMiddleware(h)
	h = s.panicRecovery(h)
	return h
}

// Start binds the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := listener.Listen(s.config.Server.Address, s.logger)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info().
		Str("address", ln.Addr().String()).
		Strs("hooks", s.registry.Names()).
		Msg("listening")

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting requests and waits for in-flight requests.
// Hook actions that are already running are not interrupted.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	if s.ledger != nil {
		s.ledger.Close()
	}
	if closeErr := s.tracker.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	event := s.logger.Info().Int("telemetry_events", s.tracker.Count())
	for k, v := range s.metrics.Stats() {
		event = event.Int64(k, v)
	}
	event.Msg("server stopped")
	return err
}

// Metrics returns the server's counters.
func (s *Server) Metrics() *monitoring.MetricsCollector { return s.metrics }
