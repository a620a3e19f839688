package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gmail-mcp/internal/config"
	"github.com/teemow/gmail-mcp/internal/gmail"
	"github.com/teemow/gmail-mcp/internal/google"
	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/logging"
	"github.com/teemow/gmail-mcp/internal/resources"
	"github.com/teemow/gmail-mcp/internal/server"
	"github.com/teemow/gmail-mcp/internal/tools/gmail_tools"
)

// shutdownTimeout bounds the flush of telemetry and the metrics listener.
const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start the Model Context Protocol (MCP) server over stdio.

The server exposes read-only Gmail tools:
  - gmail.search_messages
  - gmail.get_message
  - gmail.get_attachments
  - gmail.get_attachment_data
  - gmail.get_messages_batch

and the gmail://profile resource.

Authorization:
  The OAuth client credential JSON is read from --client-secret-path
  (GOOGLE_CLIENT_SECRET_PATH). The token is stored at --token-path
  (GOOGLE_TOKEN_PATH). If no token is stored yet and --interactive-auth
  is set, the consent flow runs before the server starts. Expired tokens
  are refreshed automatically.

Observability:
  Logs go to stderr. Set --metrics-addr (METRICS_ADDR) to serve Prometheus
  metrics and health probes on a separate HTTP listener.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd.Flags(), serveFlagBindings)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	flags := cmd.Flags()
	addAuthFlags(flags)
	flags.String(flagGmailEndpoint, "",
		"Override the Gmail API base URL, e.g. for a local fake (env "+config.KeyGmailEndpoint+")")
	flags.Bool(flagInteractiveAuth, true,
		"Run the consent flow at startup when no token is stored (env "+config.KeyInteractiveAuth+")")
	flags.String(flagMetricsAddr, "",
		"Address for the metrics and health listener, e.g. "+server.DefaultMetricsAddr+" (env "+config.KeyMetricsAddr+")")

	return cmd
}

func runServe(cfg config.Config) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation configuration: %w", err)
	}

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	tokens, err := newTokenManager(cfg, logger, metrics, cfg.InteractiveAuth)
	if err != nil {
		return err
	}
	if err := ensureToken(shutdownCtx, cfg, tokens, logger); err != nil {
		return err
	}

	httpClient := google.NewHTTPClient(tokens.TokenSource(shutdownCtx))
	svc, err := gmail.NewService(shutdownCtx, httpClient, cfg.GmailEndpoint)
	if err != nil {
		return err
	}
	client := gmail.NewClient(gmail.NewServiceAPI(svc),
		gmail.WithLogger(logger),
		gmail.WithMetrics(metrics),
	)

	serverContext := server.NewServerContext(shutdownCtx,
		server.WithGmailClient(client),
		server.WithTokenManager(tokens),
		server.WithLogger(logger),
	)
	// Set metrics and audit logger on server context for tool instrumentation
	if provider.Enabled() {
		serverContext.SetMetrics(metrics)
		serverContext.SetAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging))
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("server context shutdown failed", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("gmail-mcp", version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
	)

	dispatcher, err := gmail_tools.RegisterGmailTools(mcpSrv, serverContext, client)
	if err != nil {
		return err
	}
	logger.Info("registered tools", slog.Any("tools", dispatcher.Names()))

	if err := resources.RegisterGmailResources(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register resources: %w", err)
	}

	health := server.NewHealthChecker(serverContext)
	if cfg.MetricsAddr != "" {
		metricsServer, err := startMetricsServer(cfg.MetricsAddr, provider, health, logger)
		if err != nil {
			return err
		}
		if metricsServer != nil {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := metricsServer.Shutdown(ctx); err != nil {
					logger.Error("metrics server shutdown failed", logging.Err(err))
				}
			}()
		}
	}
	health.SetReady(true)

	return runStdioServer(shutdownCtx, mcpSrv, logger)
}

// ensureToken runs the first-run consent flow when no token is stored.
// Without interactive auth the server still starts; tool calls then fail
// with an auth error until "gmail-mcp auth" has been run.
func ensureToken(ctx context.Context, cfg config.Config, tokens *google.TokenManager, logger *slog.Logger) error {
	if tokens.HasToken() {
		return nil
	}
	if !cfg.InteractiveAuth {
		logger.Warn("no stored token, tool calls will fail until authorized",
			logging.Path(cfg.TokenPath))
		return nil
	}

	logger.Info("no stored token, starting authorization", logging.Path(cfg.TokenPath))
	if err := tokens.Authorize(ctx); err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}
	return nil
}

// startMetricsServer starts the metrics and health listener in the
// background. It returns an error if the provider cannot serve metrics.
func startMetricsServer(addr string, provider *instrumentation.Provider, health *server.HealthChecker, logger *slog.Logger) (*server.MetricsServer, error) {
	if !provider.Enabled() {
		logger.Warn("metrics address set but instrumentation is disabled, not starting metrics server")
		return nil, nil
	}

	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: provider,
		Health:                  health,
		Logger:                  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	go func() {
		if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", logging.Err(err))
		}
	}()
	return metricsServer, nil
}

// runStdioServer serves MCP on stdin/stdout until the client disconnects
// or ctx is cancelled.
func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, logger *slog.Logger) error {
	stdio := mcpserver.NewStdioServer(mcpSrv)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	logger.Info("serving MCP on stdio", slog.String("version", version))
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
