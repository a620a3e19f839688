// Package server holds the runtime state shared by the MCP tool handlers
// and the optional HTTP listener for metrics and health probes.
//
// ServerContext carries the Gmail client, the token manager behind it,
// and the metrics recorder and audit logger used by instrumented tool
// handlers. Shutdown cancels its context.
//
// MetricsServer serves Prometheus metrics on /metrics together with the
// HealthChecker probes:
//   - /healthz: the process is up
//   - /readyz: the MCP server is serving, not shutting down, and a token is stored
//   - /healthz/detailed: uptime and token presence
//
// The MCP protocol itself runs over stdio, so this listener is only started
// when a metrics address is configured.
package server
