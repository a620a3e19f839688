// Package instrumentation provides OpenTelemetry instrumentation for the
// gmail-mcp server.
//
// It covers:
//   - OpenTelemetry metrics for Gmail API calls, OAuth token handling and MCP tools
//   - Tracing spans for tool invocations and Gmail API calls
//   - Prometheus export via the optional metrics listener
//   - OTLP export for observability platforms
//
// # Metrics
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Gmail operations by operation and status
//   - google_api_operation_duration_seconds: Histogram of Gmail operation durations
//   - gmail_provider_errors_total: Counter of Gmail failures by operation and error kind
//
// OAuth Metrics:
//   - oauth_auth_total: Counter of interactive authorization attempts by result
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of tool execution durations
//
// # Tracing
//
// Spans are created for MCP tool invocations (tool.<name>) and Gmail API
// calls (gmail.<operation>). They carry tool and operation names and the
// error kind, never message ids.
//
// # Configuration
//
// Instrumentation is configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: gmail-mcp)
//   - METRICS_EXPORT_INTERVAL: Push period of the otlp and stdout exporters (default: 10s)
//   - METRICS_DETAILED_LABELS: Add the error kind label to tool metrics
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_MESSAGE_IDS: Audit records
//
// Each provider with the prometheus exporter owns its registry, served by
// Provider.MetricsHandler.
//
// The stdout exporters write to stderr, since stdout carries the MCP stream.
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordGoogleAPIOperation(ctx, "gmail", "search", "success", time.Since(start))
//	recorder.RecordToolInvocation(ctx, "gmail.search_messages", "success", time.Since(start))
package instrumentation
