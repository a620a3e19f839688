package gmail_tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/logging"
	"github.com/teemow/gmail-mcp/internal/server"
	"github.com/teemow/gmail-mcp/internal/tools/common"
)

// Dispatcher routes tool calls by name. It is built once at startup and
// runs one call at a time.
type Dispatcher struct {
	mu     sync.Mutex
	tools  map[string]Tool
	logger *slog.Logger
}

// NewDispatcher validates the tool table and returns a dispatcher for it.
// Names must be non-empty and unique, and every tool needs a handler.
func NewDispatcher(tools []Tool, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	table := make(map[string]Tool, len(tools))
	for i, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool %d has an empty name", i)
		}
		if t.Definition.Name != t.Name {
			return nil, fmt.Errorf("tool %s: definition is named %q", t.Name, t.Definition.Name)
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tool %s has no handler", t.Name)
		}
		if _, dup := table[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %s", t.Name)
		}
		table[t.Name] = t
	}

	return &Dispatcher{tools: table, logger: logger}, nil
}

// Names returns the registered tool names in sorted order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the registered tools sorted by name.
func (d *Dispatcher) Tools() []Tool {
	tools := make([]Tool, 0, len(d.tools))
	for _, name := range d.Names() {
		tools = append(tools, d.tools[name])
	}
	return tools
}

// Dispatch runs the named tool with args. Unknown names and invalid
// arguments fail with *DispatchError without touching the mailbox.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := d.tools[name]
	if !ok {
		return nil, &DispatchError{Kind: KindUnknownTool, Tool: name, Message: fmt.Sprintf("unknown tool %q", name)}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	logger := logging.WithTool(d.logger, name)
	start := time.Now()

	result, err := t.Handler(ctx, args)
	if err != nil {
		logger.DebugContext(ctx, "tool call failed",
			logging.Kind(ErrorKind(err)),
			logging.Err(err),
			slog.Duration(logging.KeyDuration, time.Since(start)))
		return nil, err
	}

	logger.DebugContext(ctx, "tool call completed",
		slog.Duration(logging.KeyDuration, time.Since(start)))
	return result, nil
}

// Handle returns an mcp-go handler for the named tool. Results are
// encoded as indented JSON; failures become error results carrying the
// error kind.
func (d *Dispatcher) Handle(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := d.Dispatch(ctx, name, request.GetArguments())
		if err != nil {
			return common.NewErrorResult(ErrorKind(err), err.Error()), nil
		}

		out, err := common.NewJSONResult(result)
		if err != nil {
			return common.NewErrorResult(instrumentation.KindInternal, err.Error()), nil
		}
		return out, nil
	}
}

// Register adds every tool to s, wrapped with the instrumentation of sc.
func (d *Dispatcher) Register(s *mcpserver.MCPServer, sc *server.ServerContext) {
	for _, t := range d.Tools() {
		s.AddTool(t.Definition, common.InstrumentedToolHandlerWithService(
			t.Name, instrumentation.ServiceGmail, t.Operation, sc, d.Handle(t.Name)))
	}
}

// RegisterGmailTools builds the Gmail tool set over client and registers
// it with s.
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext, client MailClient) (*Dispatcher, error) {
	d, err := NewDispatcher(NewGmailTools(client, sc.Logger()), sc.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to build gmail tools: %w", err)
	}
	d.Register(s, sc)
	return d, nil
}
