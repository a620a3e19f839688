package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span gmail-mcp starts.
const TracerName = "github.com/teemow/gmail-mcp"

// Span attribute keys. Spans never carry message ids or mail content.
const (
	AttrTool      = "mcp.tool"
	AttrReadOnly  = "mcp.read_only"
	AttrService   = "google.service"
	AttrOperation = "google.operation"
	AttrErrorKind = "mcp.error_kind"
)

// OperationAttributes tags a span with the Google service and operation
// behind it. Empty values are left out.
func OperationAttributes(service, operation string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if service != "" {
		attrs = append(attrs, attribute.String(AttrService, service))
	}
	if operation != "" {
		attrs = append(attrs, attribute.String(AttrOperation, operation))
	}
	return attrs
}

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// StartToolSpan starts the server span of one MCP tool call. All tools
// are read-only.
func StartToolSpan(ctx context.Context, tool string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{
		attribute.String(AttrTool, tool),
		attribute.Bool(AttrReadOnly, true),
	}, attrs...)
	return tracer().Start(ctx, "tool."+tool,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer))
}

// StartGmailSpan starts the client span of one Gmail API request.
func StartGmailSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "gmail."+operation,
		trace.WithAttributes(OperationAttributes(ServiceGmail, operation)...),
		trace.WithSpanKind(trace.SpanKindClient))
}

// FinishSpan sets the span status from err. A failed span also gets the
// error kind, reduced to the closed label set by ErrorKindLabel.
func FinishSpan(span trace.Span, err error, kind string) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if kind != "" {
		span.SetAttributes(attribute.String(AttrErrorKind, ErrorKindLabel(kind)))
	}
}

// TraceIDs returns the trace and span id of the span in ctx, or two empty
// strings when there is none.
func TraceIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
