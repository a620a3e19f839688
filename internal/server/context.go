package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teemow/gmail-mcp/internal/gmail"
	"github.com/teemow/gmail-mcp/internal/google"
	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/logging"
)

// ServerContext holds the shared state of the MCP server: the Gmail client,
// the token manager behind it, and the optional instrumentation hooks.
type ServerContext struct {
	ctx         context.Context
	cancel      context.CancelFunc
	gmailClient *gmail.Client
	tokens      *google.TokenManager
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	logger      *slog.Logger
	mu          sync.RWMutex
	shutdown    bool
}

// ServerContextOption configures a ServerContext.
type ServerContextOption func(*ServerContext)

// WithGmailClient sets the Gmail client served by the tools.
func WithGmailClient(c *gmail.Client) ServerContextOption {
	return func(sc *ServerContext) { sc.gmailClient = c }
}

// WithTokenManager sets the token manager backing the Gmail client.
func WithTokenManager(tm *google.TokenManager) ServerContextOption {
	return func(sc *ServerContext) { sc.tokens = tm }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) ServerContextOption {
	return func(sc *ServerContext) { sc.logger = l }
}

// NewServerContext creates a new server context. The returned context is
// cancelled by Shutdown.
func NewServerContext(ctx context.Context, opts ...ServerContextOption) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// GmailClient returns the Gmail client, or nil when none was configured.
func (sc *ServerContext) GmailClient() *gmail.Client {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.gmailClient
}

// TokenManager returns the token manager, or nil when none was configured.
func (sc *ServerContext) TokenManager() *google.TokenManager {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.tokens
}

// HasToken reports whether a token record is stored.
func (sc *ServerContext) HasToken() bool {
	tm := sc.TokenManager()
	return tm != nil && tm.HasToken()
}

// SetMetrics sets the metrics recorder used by instrumented tool handlers.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder. It may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger used by instrumented tool handlers.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

// AuditLogger returns the audit logger. It may be nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
