package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric label keys.
const (
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrTool      = "tool"
	attrKind      = "kind"
)

// latencyBuckets covers a fast metadata read up to a slow attachment
// download, in seconds.
var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Metrics records the counters and histograms of gmail-mcp. A nil or zero
// Metrics is a valid no-op recorder.
type Metrics struct {
	apiCalls       metric.Int64Counter
	apiLatency     metric.Float64Histogram
	providerErrors metric.Int64Counter

	authorizations metric.Int64Counter
	refreshes      metric.Int64Counter

	toolCalls   metric.Int64Counter
	toolLatency metric.Float64Histogram

	detailedLabels bool
}

// instruments creates counters and histograms on one meter and keeps the
// first error of each.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) counter(name, desc, unit string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("failed to create %s counter: %w", name, err))
	}
	return c
}

func (in *instruments) histogram(name, desc string) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("failed to create %s histogram: %w", name, err))
	}
	return h
}

// NewMetrics creates every instrument on meter. With detailedLabels the
// error kind is added to the tool invocation series.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	in := &instruments{meter: meter}
	m := &Metrics{
		apiCalls:       in.counter("google_api_operations_total", "Gmail API calls by operation and status", "{operation}"),
		apiLatency:     in.histogram("google_api_operation_duration_seconds", "Gmail API call latency"),
		providerErrors: in.counter("gmail_provider_errors_total", "Failed Gmail API calls by error kind", "{error}"),
		authorizations: in.counter("oauth_auth_total", "Interactive OAuth consent flows by result", "{attempt}"),
		refreshes:      in.counter("oauth_token_refresh_total", "OAuth token refreshes by result", "{attempt}"),
		toolCalls:      in.counter("mcp_tool_invocations_total", "MCP tool calls by tool and status", "{invocation}"),
		toolLatency:    in.histogram("mcp_tool_duration_seconds", "MCP tool call latency"),
		detailedLabels: detailedLabels,
	}
	if err := errors.Join(in.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordGoogleAPIOperation counts one Gmail API call and its latency.
// status is StatusSuccess or StatusError.
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.apiCalls == nil {
		return
	}
	opt := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.apiCalls.Add(ctx, 1, opt)
	m.apiLatency.Record(ctx, duration.Seconds(), opt)
}

// RecordProviderError counts a failed Gmail API call. kind is reduced to
// the closed label set by ErrorKindLabel.
func (m *Metrics) RecordProviderError(ctx context.Context, operation, kind string) {
	if m == nil || m.providerErrors == nil {
		return
	}
	m.providerErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrKind, ErrorKindLabel(kind)),
	))
}

// RecordOAuthAuth counts a consent flow with an OAuthResult* value.
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.authorizations == nil {
		return
	}
	m.authorizations.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordOAuthTokenRefresh counts a token refresh with an OAuthResult* value.
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.refreshes == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordToolInvocation is RecordToolInvocationWithKind without a kind.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	m.RecordToolInvocationWithKind(ctx, toolName, status, "", duration)
}

// RecordToolInvocationWithKind counts one tool call and its latency. The
// kind label is only attached with detailed labels.
func (m *Metrics) RecordToolInvocationWithKind(ctx context.Context, toolName, status, kind string, duration time.Duration) {
	if m == nil || m.toolCalls == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && kind != "" {
		attrs = append(attrs, attribute.String(attrKind, ErrorKindLabel(kind)))
	}
	opt := metric.WithAttributes(attrs...)
	m.toolCalls.Add(ctx, 1, opt)
	m.toolLatency.Record(ctx, duration.Seconds(), opt)
}
