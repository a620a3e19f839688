package gmail_tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/gmail-mcp/internal/gmail"
	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/logging"
	"github.com/teemow/gmail-mcp/internal/tools/batch"
)

// Tool name constants.
const (
	ToolSearchMessages    = "gmail.search_messages"
	ToolGetMessage        = "gmail.get_message"
	ToolGetAttachments    = "gmail.get_attachments"
	ToolGetAttachmentData = "gmail.get_attachment_data"
	ToolGetMessagesBatch  = "gmail.get_messages_batch"
)

// Argument limits.
const (
	MaxSearchResults = 500
	MaxBatchMessages = 100
)

// Body formats accepted by gmail.get_message.
const (
	BodyFormatText     = "text"
	BodyFormatMarkdown = "markdown"
)

// MailClient is the read-only mailbox surface the tools call.
// *gmail.Client implements it.
type MailClient interface {
	Search(ctx context.Context, query string, maxResults int) ([]gmail.MessageSummary, error)
	GetMessageDetail(ctx context.Context, messageID string, opts gmail.NormalizeOptions) (gmail.MessageDetail, error)
	GetAttachments(ctx context.Context, messageID string) ([]gmail.AttachmentMeta, error)
	GetAttachmentData(ctx context.Context, messageID, attachmentID string) (gmail.AttachmentData, error)
}

var _ MailClient = (*gmail.Client)(nil)

// Tool is one entry of the dispatch table.
type Tool struct {
	Name string
	// Operation is the Google API operation label used for spans and audit
	// records.
	Operation  string
	Definition mcp.Tool
	// Handler validates args and runs the call. Validation always happens
	// before any mailbox access.
	Handler func(ctx context.Context, args map[string]any) (any, error)
}

// newTool binds an argument parser and a typed handler into a Tool.
func newTool[In any](def mcp.Tool, operation string, parse func(args map[string]any) (In, error), run func(ctx context.Context, in In) (any, error)) Tool {
	name := def.Name
	return Tool{
		Name:       name,
		Operation:  operation,
		Definition: def,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			in, err := parse(args)
			if err != nil {
				return nil, invalidInput(name, err)
			}
			return run(ctx, in)
		},
	}
}

type searchInput struct {
	Query      string
	MaxResults int
}

type messageInput struct {
	MessageID  string
	BodyFormat string
}

type attachmentInput struct {
	MessageID    string
	AttachmentID string
}

type batchInput struct {
	MessageIDs []string
}

// NewGmailTools returns the read-only Gmail tool set backed by client.
// Failures of individual batch items are logged to logger.
func NewGmailTools(client MailClient, logger *slog.Logger) []Tool {
	if logger == nil {
		logger = logging.Discard()
	}

	return []Tool{
		newTool(searchMessagesTool(), instrumentation.OperationSearch,
			func(args map[string]any) (searchInput, error) {
				query, err := requiredString(args, "query")
				if err != nil {
					return searchInput{}, err
				}
				maxResults, err := optionalInt(args, "max_results", gmail.DefaultMaxResults, 1, MaxSearchResults)
				if err != nil {
					return searchInput{}, err
				}
				return searchInput{Query: query, MaxResults: maxResults}, nil
			},
			func(ctx context.Context, in searchInput) (any, error) {
				return client.Search(ctx, in.Query, in.MaxResults)
			},
		),
		newTool(getMessageTool(), instrumentation.OperationGet,
			parseMessageInput,
			func(ctx context.Context, in messageInput) (any, error) {
				return client.GetMessageDetail(ctx, in.MessageID, gmail.NormalizeOptions{
					HTMLAsMarkdown: in.BodyFormat == BodyFormatMarkdown,
				})
			},
		),
		newTool(getAttachmentsTool(), instrumentation.OperationAttachments,
			func(args map[string]any) (messageInput, error) {
				messageID, err := requiredString(args, "message_id")
				return messageInput{MessageID: messageID}, err
			},
			func(ctx context.Context, in messageInput) (any, error) {
				return client.GetAttachments(ctx, in.MessageID)
			},
		),
		newTool(getAttachmentDataTool(), instrumentation.OperationGetAttachment,
			func(args map[string]any) (attachmentInput, error) {
				messageID, err := requiredString(args, "message_id")
				if err != nil {
					return attachmentInput{}, err
				}
				attachmentID, err := requiredString(args, "attachment_id")
				if err != nil {
					return attachmentInput{}, err
				}
				return attachmentInput{MessageID: messageID, AttachmentID: attachmentID}, nil
			},
			func(ctx context.Context, in attachmentInput) (any, error) {
				return client.GetAttachmentData(ctx, in.MessageID, in.AttachmentID)
			},
		),
		newTool(getMessagesBatchTool(), instrumentation.OperationBatchGet,
			func(args map[string]any) (batchInput, error) {
				ids, err := requiredStringList(args, "message_ids", MaxBatchMessages)
				if err != nil {
					return batchInput{}, err
				}
				return batchInput{MessageIDs: ids}, nil
			},
			func(ctx context.Context, in batchInput) (any, error) {
				return getMessagesBatch(ctx, client, logger, in.MessageIDs)
			},
		),
	}
}

func parseMessageInput(args map[string]any) (messageInput, error) {
	messageID, err := requiredString(args, "message_id")
	if err != nil {
		return messageInput{}, err
	}
	format, err := optionalEnum(args, "body_format", BodyFormatText, BodyFormatText, BodyFormatMarkdown)
	if err != nil {
		return messageInput{}, err
	}
	return messageInput{MessageID: messageID, BodyFormat: format}, nil
}

// getMessagesBatch fetches messages one at a time. Failed ids are logged
// and skipped; only when every id fails is the first error returned.
func getMessagesBatch(ctx context.Context, client MailClient, logger *slog.Logger, ids []string) ([]gmail.MessageDetail, error) {
	res := batch.Process(ctx, ids, func(ctx context.Context, id string) (gmail.MessageDetail, error) {
		return client.GetMessageDetail(ctx, id, gmail.NormalizeOptions{})
	})

	for _, f := range res.Failed {
		logger.WarnContext(ctx, "skipping message in batch",
			logging.Tool(ToolGetMessagesBatch),
			logging.Kind(ErrorKind(f.Err)),
			logging.Err(f.Err))
		logger.DebugContext(ctx, "skipped message", logging.MessageID(f.ID))
	}

	if len(res.Succeeded) == 0 {
		return nil, res.FirstError()
	}
	return res.Succeeded, nil
}

func searchMessagesTool() mcp.Tool {
	return mcp.NewTool(ToolSearchMessages,
		mcp.WithDescription("Search the mailbox with Gmail query syntax and return matching message and thread ids, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Gmail search query (e.g. 'from:alice has:attachment newer_than:7d')"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of messages to return (default 100, at most 500)"),
			mcp.DefaultNumber(gmail.DefaultMaxResults),
			mcp.Min(1),
			mcp.Max(MaxSearchResults),
		),
	)
}

func getMessageTool() mcp.Tool {
	return mcp.NewTool(ToolGetMessage,
		mcp.WithDescription("Get the headers and plain-text body of a message. HTML-only messages are converted to text."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("Message id (from gmail.search_messages)"),
		),
		mcp.WithString("body_format",
			mcp.Description("How to render an HTML-only body: 'text' strips markup, 'markdown' keeps structure (default 'text')"),
			mcp.Enum(BodyFormatText, BodyFormatMarkdown),
		),
	)
}

func getAttachmentsTool() mcp.Tool {
	return mcp.NewTool(ToolGetAttachments,
		mcp.WithDescription("List the attachments of a message with their ids, file names, MIME types and sizes."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("Message id (from gmail.search_messages)"),
		),
	)
}

func getAttachmentDataTool() mcp.Tool {
	return mcp.NewTool(ToolGetAttachmentData,
		mcp.WithDescription("Download one attachment as standard base64. Use gmail.get_attachments first to find attachment ids."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("Message id the attachment belongs to"),
		),
		mcp.WithString("attachment_id",
			mcp.Required(),
			mcp.Description("Attachment id (from gmail.get_attachments)"),
		),
	)
}

func getMessagesBatchTool() mcp.Tool {
	return mcp.NewTool(ToolGetMessagesBatch,
		mcp.WithDescription("Get several messages in one call. Messages that cannot be fetched are skipped; results keep the input order."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithArray("message_ids",
			mcp.Required(),
			mcp.Description("Message ids to fetch (1 to 100)"),
			mcp.WithStringItems(),
			mcp.MinItems(1),
			mcp.MaxItems(MaxBatchMessages),
		),
	)
}
