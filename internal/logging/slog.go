package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Attribute keys shared by every component.
const (
	KeyOperation = "operation"
	KeyService   = "service"
	KeyTool      = "tool"
	KeyDuration  = "duration"
	KeyError     = "error"
	KeyKind      = "error_kind"
	KeyMessageID = "message_id"
	KeyPath      = "path"
)

// New returns a text logger writing to w at level. A nil w means
// os.Stderr; stdout belongs to the MCP stdio transport.
func New(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
// The empty string is info.
func ParseLevel(name string) (slog.Level, error) {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil || strings.ContainsAny(name, "+-") {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(Operation(operation))
}

func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(Tool(tool))
}

func WithService(logger *slog.Logger, service string) *slog.Logger {
	return logger.With(slog.String(KeyService, service))
}

func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

func Tool(tool string) slog.Attr { return slog.String(KeyTool, tool) }

// MessageID is only logged at debug level; message ids identify mail.
func MessageID(id string) slog.Attr { return slog.String(KeyMessageID, id) }

// Kind is an error kind such as "ProviderError.NotFound".
func Kind(kind string) slog.Attr { return slog.String(KeyKind, kind) }

func Path(path string) slog.Attr { return slog.String(KeyPath, path) }

// Err returns the error attribute. A nil err yields an empty group, which
// handlers omit, so Err(maybeNil) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}
