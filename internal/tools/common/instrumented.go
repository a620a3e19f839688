package common

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/server"
)

// InstrumentedToolHandler wraps a tool handler with a span, metrics and
// audit logging.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return InstrumentedToolHandlerWithService(toolName, "", "", sc, handler)
}

// InstrumentedToolHandlerWithService is like InstrumentedToolHandler but
// also tags the span and audit record with the Google service and
// operation behind the tool. Google API metrics are recorded per call by
// the Gmail client, not here.
//
// The error kind of a failed invocation is read from the result's error
// envelope (see NewErrorResult).
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandlerWithService("my_tool", "gmail", "get", sc, handler))
func InstrumentedToolHandlerWithService(
	toolName string,
	serviceName string,
	operation string,
	sc *server.ServerContext,
	handler mcpserver.ToolHandlerFunc,
) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics := sc.Metrics()
		auditLogger := sc.AuditLogger()

		ctx, span := instrumentation.StartToolSpan(ctx, toolName,
			instrumentation.OperationAttributes(serviceName, operation)...)
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx)
		if serviceName != "" {
			invocation.WithService(serviceName, operation)
		}
		if id := GetMessageIDFromArgs(request.GetArguments()); id != "" {
			invocation.WithMessageID(id)
		}

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		kind := ""
		var failure error
		switch {
		case err != nil:
			kind = instrumentation.KindInternal
			failure = err
		case result != nil && result.IsError:
			kind = instrumentation.KindInternal
			failure = errors.New("tool returned an error result")
			if body, ok := ParseErrorResult(result); ok {
				kind = instrumentation.ErrorKindLabel(body.Kind)
				failure = errors.New(body.Message)
			}
		}
		instrumentation.FinishSpan(span, failure, kind)
		if failure != nil {
			status = instrumentation.StatusError
			invocation.WithErrorKind(kind).CompleteWithError(failure)
		} else {
			invocation.CompleteSuccess()
		}

		metrics.RecordToolInvocationWithKind(ctx, toolName, status, kind, duration)
		auditLogger.LogToolInvocation(ctx, invocation)

		return result, err
	}
}

// GetMessageIDFromArgs returns the message_id argument of a tool call, or
// "" when it is absent or not a string.
func GetMessageIDFromArgs(args map[string]any) string {
	if id, ok := args["message_id"].(string); ok {
		return id
	}
	return ""
}
