package instrumentation

import (
	"context"
	"log/slog"
	"time"
)

// ToolInvocation is the audit record of one tool call.
type ToolInvocation struct {
	Tool        string
	ServiceName string
	Operation   string
	// MessageID identifies a user's mail; it is only written when the
	// audit logger is configured with IncludeMessageIDs.
	MessageID string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	ErrorKind string
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation starts the clock of a tool call.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{Tool: tool, StartTime: time.Now()}
}

func (ti *ToolInvocation) WithService(serviceName, operation string) *ToolInvocation {
	ti.ServiceName, ti.Operation = serviceName, operation
	return ti
}

func (ti *ToolInvocation) WithMessageID(id string) *ToolInvocation {
	ti.MessageID = id
	return ti
}

func (ti *ToolInvocation) WithErrorKind(kind string) *ToolInvocation {
	ti.ErrorKind = kind
	return ti
}

// WithSpanContext copies the trace and span id of the span in ctx.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	ti.TraceID, ti.SpanID = TraceIDs(ctx)
	return ti
}

// CompleteSuccess stops the clock of a successful call.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = true
	return ti
}

// CompleteWithError stops the clock of a failed call.
func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = false
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status is StatusSuccess or StatusError.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// Attrs returns the record as slog attributes. Empty fields are left out,
// and the message id only appears with withMessageID.
func (ti *ToolInvocation) Attrs(withMessageID bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	optional := []struct{ key, value string }{
		{"service", ti.ServiceName},
		{"operation", ti.Operation},
		{"trace_id", ti.TraceID},
		{"span_id", ti.SpanID},
		{"error_kind", ti.ErrorKind},
		{"error", ti.Error},
	}
	if withMessageID {
		optional = append(optional, struct{ key, value string }{"message_id", ti.MessageID})
	}
	for _, o := range optional {
		if o.value != "" {
			attrs = append(attrs, slog.String(o.key, o.value))
		}
	}
	return attrs
}

// AuditLogger writes one record per tool call: tool_executed at info,
// tool_failed at warn. A nil AuditLogger drops every record.
type AuditLogger struct {
	logger            *slog.Logger
	enabled           bool
	includeMessageIDs bool
}

// NewAuditLogger returns an enabled audit logger without message ids.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:            logger.With(slog.String("component", "audit")),
		enabled:           config.Enabled,
		includeMessageIDs: config.IncludeMessageIDs,
	}
}

// LogToolInvocation writes the record of ti.
func (al *AuditLogger) LogToolInvocation(ctx context.Context, ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}
	if ti.Success {
		al.logger.LogAttrs(ctx, slog.LevelInfo, "tool_executed", ti.Attrs(al.includeMessageIDs)...)
		return
	}
	al.logger.LogAttrs(ctx, slog.LevelWarn, "tool_failed", ti.Attrs(al.includeMessageIDs)...)
}
