package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/logging"
)

// DefaultMetricsAddr keeps the listener on loopback. Metrics carry tool
// names and error kinds only, but there is no authentication in front.
const DefaultMetricsAddr = "127.0.0.1:9090"

const (
	metricsReadHeaderTimeout = 10 * time.Second
	metricsWriteTimeout      = 10 * time.Second
	metricsIdleTimeout       = 60 * time.Second
)

// MetricsServerConfig configures NewMetricsServer.
type MetricsServerConfig struct {
	// Addr defaults to DefaultMetricsAddr.
	Addr string

	// InstrumentationProvider must be enabled; its registry is served on
	// /metrics.
	InstrumentationProvider *instrumentation.Provider

	// Health adds /healthz, /readyz and /healthz/detailed. Without it only
	// a bare /healthz is served.
	Health *HealthChecker

	Logger *slog.Logger
}

// MetricsServer is the optional HTTP listener next to the stdio MCP
// stream. It serves Prometheus metrics and the health probes.
type MetricsServer struct {
	addr     string
	provider *instrumentation.Provider
	health   *HealthChecker
	logger   *slog.Logger
	srv      *http.Server
	bound    atomic.Pointer[string]
}

func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	switch {
	case config.InstrumentationProvider == nil:
		return nil, errors.New("instrumentation provider is required for metrics server")
	case !config.InstrumentationProvider.Enabled():
		return nil, errors.New("instrumentation provider is not enabled")
	}
	if config.Addr == "" {
		config.Addr = DefaultMetricsAddr
	}
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}

	s := &MetricsServer{
		addr:     config.Addr,
		provider: config.InstrumentationProvider,
		health:   config.Health,
		logger:   logging.WithService(config.Logger, "metrics"),
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: metricsReadHeaderTimeout,
		WriteTimeout:      metricsWriteTimeout,
		IdleTimeout:       metricsIdleTimeout,
	}
	return s, nil
}

// Handler routes /metrics and the health probes.
func (s *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.provider.MetricsHandler())
	if s.health != nil {
		s.health.RegisterHealthEndpoints(mux)
	} else {
		mux.Handle("/healthz", NewHealthChecker(nil).LivenessHandler())
	}
	return mux
}

// Start listens and serves until Shutdown, then returns
// http.ErrServerClosed.
func (s *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	bound := ln.Addr().String()
	s.bound.Store(&bound)

	s.logger.Info("metrics server listening", slog.String("addr", bound))
	return s.srv.Serve(ln)
}

// Shutdown stops the listener and waits for in-flight scrapes. It is safe
// to call before Start.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("stopping metrics server")
	return s.srv.Shutdown(ctx)
}

// Addr is the bound address once Start listens, the configured one before.
func (s *MetricsServer) Addr() string {
	if bound := s.bound.Load(); bound != nil {
		return *bound
	}
	return s.addr
}
