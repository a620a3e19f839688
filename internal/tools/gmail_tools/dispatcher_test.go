package gmail_tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/gmail-mcp/internal/gmail"
	"github.com/teemow/gmail-mcp/internal/google"
	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/server"
	"github.com/teemow/gmail-mcp/internal/tools/common"
)

// fakeMail is an in-memory MailClient. failures maps a message id to the
// error returned for it.
type fakeMail struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]error

	lastQuery string
	lastMax   int
	lastOpts  gmail.NormalizeOptions

	inflight    atomic.Int32
	maxInflight atomic.Int32
	delay       time.Duration
}

func (f *fakeMail) enter(call string) func() {
	n := f.inflight.Add(1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.inflight.Add(-1) }
}

func (f *fakeMail) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeMail) Search(_ context.Context, query string, maxResults int) ([]gmail.MessageSummary, error) {
	defer f.enter("search")()
	f.lastQuery, f.lastMax = query, maxResults
	return []gmail.MessageSummary{{MessageID: "m1", ThreadID: "t1"}}, nil
}

func (f *fakeMail) GetMessageDetail(_ context.Context, id string, opts gmail.NormalizeOptions) (gmail.MessageDetail, error) {
	defer f.enter("get:" + id)()
	f.lastOpts = opts
	if err := f.failures[id]; err != nil {
		return gmail.MessageDetail{}, err
	}
	return gmail.MessageDetail{MessageID: id, ThreadID: "t-" + id, Subject: "subject " + id}, nil
}

func (f *fakeMail) GetAttachments(_ context.Context, id string) ([]gmail.AttachmentMeta, error) {
	defer f.enter("attachments:" + id)()
	if err := f.failures[id]; err != nil {
		return nil, err
	}
	return []gmail.AttachmentMeta{}, nil
}

func (f *fakeMail) GetAttachmentData(_ context.Context, messageID, attachmentID string) (gmail.AttachmentData, error) {
	defer f.enter("attachment:" + messageID + "/" + attachmentID)()
	if err := f.failures[messageID]; err != nil {
		return gmail.AttachmentData{}, err
	}
	return gmail.AttachmentData{AttachmentID: attachmentID, Data: "aGVsbG8=", Size: 5}, nil
}

func newTestDispatcher(t *testing.T, mail *fakeMail) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(NewGmailTools(mail, nil), nil)
	require.NoError(t, err)
	return d
}

func notFound(id string) error {
	return &gmail.ProviderError{Kind: gmail.KindNotFound, Op: instrumentation.OperationGet, Status: 404, Err: errors.New("not found: " + id)}
}

func TestNewDispatcher_Validation(t *testing.T) {
	handler := func(context.Context, map[string]any) (any, error) { return nil, nil }
	tool := func(name string) Tool {
		return Tool{Name: name, Definition: mcp.NewTool(name), Handler: handler}
	}

	tests := []struct {
		name    string
		tools   []Tool
		wantErr string
	}{
		{name: "valid", tools: []Tool{tool("a"), tool("b")}},
		{name: "duplicate", tools: []Tool{tool("a"), tool("a")}, wantErr: "duplicate tool name a"},
		{name: "empty name", tools: []Tool{{Definition: mcp.NewTool(""), Handler: handler}}, wantErr: "empty name"},
		{name: "no handler", tools: []Tool{{Name: "a", Definition: mcp.NewTool("a")}}, wantErr: "no handler"},
		{name: "definition mismatch", tools: []Tool{{Name: "a", Definition: mcp.NewTool("b"), Handler: handler}}, wantErr: `definition is named "b"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDispatcher(tt.tools, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestGmailTools_Table(t *testing.T) {
	d := newTestDispatcher(t, &fakeMail{})

	assert.Equal(t, []string{
		ToolGetAttachmentData,
		ToolGetAttachments,
		ToolGetMessage,
		ToolGetMessagesBatch,
		ToolSearchMessages,
	}, d.Names())

	for _, tool := range d.Tools() {
		require.NotNil(t, tool.Definition.Annotations.ReadOnlyHint, tool.Name)
		assert.True(t, *tool.Definition.Annotations.ReadOnlyHint, tool.Name)
		assert.NotEmpty(t, tool.Operation, tool.Name)
		assert.NotEmpty(t, tool.Definition.InputSchema.Required, tool.Name)
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	mail := &fakeMail{}
	d := newTestDispatcher(t, mail)

	_, err := d.Dispatch(context.Background(), "gmail.delete_message", map[string]any{"message_id": "m1"})

	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindUnknownTool, de.Kind)
	assert.Equal(t, instrumentation.KindDispatchUnknownTool, ErrorKind(err))
	assert.Zero(t, mail.callCount())
}

func TestDispatch_InvalidInputNeverReachesMailbox(t *testing.T) {
	tests := []struct {
		tool string
		args map[string]any
	}{
		{tool: ToolSearchMessages, args: map[string]any{}},
		{tool: ToolSearchMessages, args: map[string]any{"query": ""}},
		{tool: ToolSearchMessages, args: map[string]any{"query": "x", "max_results": 0.0}},
		{tool: ToolSearchMessages, args: map[string]any{"query": "x", "max_results": 501.0}},
		{tool: ToolSearchMessages, args: map[string]any{"query": "x", "max_results": 1.5}},
		{tool: ToolSearchMessages, args: map[string]any{"query": "x", "max_results": "10"}},
		{tool: ToolGetMessage, args: map[string]any{}},
		{tool: ToolGetMessage, args: map[string]any{"message_id": 42.0}},
		{tool: ToolGetMessage, args: map[string]any{"message_id": "m1", "body_format": "html"}},
		{tool: ToolGetAttachments, args: map[string]any{"message_id": ""}},
		{tool: ToolGetAttachmentData, args: map[string]any{"message_id": "m1"}},
		{tool: ToolGetAttachmentData, args: map[string]any{"attachment_id": "a1"}},
		{tool: ToolGetMessagesBatch, args: map[string]any{}},
		{tool: ToolGetMessagesBatch, args: map[string]any{"message_ids": []any{}}},
		{tool: ToolGetMessagesBatch, args: map[string]any{"message_ids": "m1"}},
		{tool: ToolGetMessagesBatch, args: map[string]any{"message_ids": []any{"m1", 2.0}}},
		{tool: ToolGetMessagesBatch, args: map[string]any{"message_ids": make([]any, MaxBatchMessages+1)}},
	}

	for _, tt := range tests {
		raw, _ := json.Marshal(tt.args)
		t.Run(tt.tool+string(raw), func(t *testing.T) {
			mail := &fakeMail{}
			d := newTestDispatcher(t, mail)

			_, err := d.Dispatch(context.Background(), tt.tool, tt.args)

			var de *DispatchError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, KindInvalidInput, de.Kind)
			assert.Equal(t, tt.tool, de.Tool)
			assert.Zero(t, mail.callCount())
		})
	}
}

func TestDispatch_Search(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		wantMax int
	}{
		{name: "default max results", args: map[string]any{"query": "from:alice"}, wantMax: gmail.DefaultMaxResults},
		{name: "explicit max results", args: map[string]any{"query": "from:alice", "max_results": 2.0}, wantMax: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mail := &fakeMail{}
			d := newTestDispatcher(t, mail)

			got, err := d.Dispatch(context.Background(), ToolSearchMessages, tt.args)
			require.NoError(t, err)
			assert.Equal(t, []gmail.MessageSummary{{MessageID: "m1", ThreadID: "t1"}}, got)
			assert.Equal(t, "from:alice", mail.lastQuery)
			assert.Equal(t, tt.wantMax, mail.lastMax)
		})
	}
}

func TestDispatch_GetMessageBodyFormat(t *testing.T) {
	mail := &fakeMail{}
	d := newTestDispatcher(t, mail)

	_, err := d.Dispatch(context.Background(), ToolGetMessage, map[string]any{"message_id": "m1"})
	require.NoError(t, err)
	assert.False(t, mail.lastOpts.HTMLAsMarkdown)

	_, err = d.Dispatch(context.Background(), ToolGetMessage, map[string]any{"message_id": "m1", "body_format": "markdown"})
	require.NoError(t, err)
	assert.True(t, mail.lastOpts.HTMLAsMarkdown)
}

func TestDispatch_Batch(t *testing.T) {
	t.Run("keeps order and skips failures", func(t *testing.T) {
		mail := &fakeMail{failures: map[string]error{"m2": notFound("m2")}}
		d := newTestDispatcher(t, mail)

		got, err := d.Dispatch(context.Background(), ToolGetMessagesBatch, map[string]any{
			"message_ids": []any{"m3", "m2", "m1"},
		})
		require.NoError(t, err)

		details, ok := got.([]gmail.MessageDetail)
		require.True(t, ok)
		require.Len(t, details, 2)
		assert.Equal(t, "m3", details[0].MessageID)
		assert.Equal(t, "m1", details[1].MessageID)
		assert.Equal(t, []string{"get:m3", "get:m2", "get:m1"}, mail.calls)
	})

	t.Run("all failing returns the first error", func(t *testing.T) {
		first := notFound("m1")
		mail := &fakeMail{failures: map[string]error{
			"m1": first,
			"m2": &google.AuthError{Reason: google.ReasonRefreshRevoked},
		}}
		d := newTestDispatcher(t, mail)

		_, err := d.Dispatch(context.Background(), ToolGetMessagesBatch, map[string]any{
			"message_ids": []any{"m1", "m2"},
		})
		assert.Same(t, first, err)
	})
}

func TestDispatch_Serialized(t *testing.T) {
	mail := &fakeMail{delay: 20 * time.Millisecond}
	d := newTestDispatcher(t, mail)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Dispatch(context.Background(), ToolGetAttachments, map[string]any{"message_id": "m1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, mail.callCount())
	assert.Equal(t, int32(1), mail.maxInflight.Load())
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestHandle_ErrorEnvelope(t *testing.T) {
	mail := &fakeMail{failures: map[string]error{
		"gone":    notFound("gone"),
		"revoked": &google.AuthError{Reason: google.ReasonRefreshRevoked, Err: errors.New("invalid_grant")},
		"limited": &gmail.ProviderError{Kind: gmail.KindRateLimited, Op: instrumentation.OperationGet, Status: 429},
	}}
	d := newTestDispatcher(t, mail)

	tests := []struct {
		name     string
		tool     string
		args     map[string]any
		wantKind string
	}{
		{name: "not found", tool: ToolGetMessage, args: map[string]any{"message_id": "gone"}, wantKind: instrumentation.KindProviderNotFound},
		{name: "auth", tool: ToolGetAttachments, args: map[string]any{"message_id": "revoked"}, wantKind: instrumentation.KindAuth},
		{name: "rate limited", tool: ToolGetAttachmentData, args: map[string]any{"message_id": "limited", "attachment_id": "a"}, wantKind: instrumentation.KindProviderRateLimited},
		{name: "invalid input", tool: ToolSearchMessages, args: map[string]any{}, wantKind: instrumentation.KindDispatchInvalidInput},
		{name: "unknown tool", tool: "gmail.send", args: nil, wantKind: instrumentation.KindDispatchUnknownTool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mcp.CallToolRequest{}
			req.Params.Name = tt.tool
			req.Params.Arguments = tt.args

			result, err := d.Handle(tt.tool)(context.Background(), req)
			require.NoError(t, err)
			assert.True(t, result.IsError)

			var env common.ErrorEnvelope
			require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &env))
			assert.Equal(t, tt.wantKind, env.Error.Kind)
			assert.NotEmpty(t, env.Error.Message)
		})
	}
}

func TestHandle_EmptyAttachmentsEncodeAsArray(t *testing.T) {
	d := newTestDispatcher(t, &fakeMail{})

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"message_id": "m1"}

	result, err := d.Handle(ToolGetAttachments)(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "[]", resultText(t, result))
}

func TestHandle_ReceivedAtNull(t *testing.T) {
	d := newTestDispatcher(t, &fakeMail{})

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"message_id": "m1"}

	result, err := d.Handle(ToolGetMessage)(context.Background(), req)
	require.NoError(t, err)

	var detail map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &detail))
	assert.Contains(t, detail, "received_at")
	assert.Nil(t, detail["received_at"])
	assert.Equal(t, "m1", detail["message_id"])
}

func TestRegisterGmailTools(t *testing.T) {
	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(false))
	sc := server.NewServerContext(context.Background())
	defer sc.Shutdown()

	d, err := RegisterGmailTools(s, sc, &fakeMail{})
	require.NoError(t, err)

	registered := s.ListTools()
	require.Len(t, registered, len(d.Names()))
	for _, name := range d.Names() {
		require.Contains(t, registered, name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = ToolSearchMessages
	req.Params.Arguments = map[string]any{"query": "in:inbox"}

	result, err := registered[ToolSearchMessages].Handler(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"message_id": "m1"`)
}
