package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/logging"
)

const (
	// DefaultMaxResults is the search cap when none is given.
	DefaultMaxResults = 100

	// userID addresses the authenticated account.
	userID = "me"
)

// API is the subset of the Gmail REST API the client uses.
type API interface {
	ListMessages(ctx context.Context, query string, maxResults int64) ([]*gmail.Message, error)
	GetMessage(ctx context.Context, messageID string) (*gmail.Message, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) (*gmail.MessagePartBody, error)
	GetProfile(ctx context.Context) (*gmail.Profile, error)
}

// NewService creates a Gmail service that sends requests through
// httpClient. A non-empty endpoint replaces the production base URL.
func NewService(ctx context.Context, httpClient *http.Client, endpoint string) (*gmail.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

type serviceAPI struct {
	svc *gmail.Service
}

// NewServiceAPI adapts a *gmail.Service to API.
func NewServiceAPI(svc *gmail.Service) API {
	return &serviceAPI{svc: svc}
}

func (s *serviceAPI) ListMessages(ctx context.Context, query string, maxResults int64) ([]*gmail.Message, error) {
	res, err := s.svc.Users.Messages.List(userID).Q(query).MaxResults(maxResults).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (s *serviceAPI) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	return s.svc.Users.Messages.Get(userID, messageID).Format("full").Context(ctx).Do()
}

func (s *serviceAPI) GetAttachment(ctx context.Context, messageID, attachmentID string) (*gmail.MessagePartBody, error) {
	return s.svc.Users.Messages.Attachments.Get(userID, messageID, attachmentID).Context(ctx).Do()
}

func (s *serviceAPI) GetProfile(ctx context.Context) (*gmail.Profile, error) {
	return s.svc.Users.GetProfile(userID).Context(ctx).Do()
}

// Client performs the read-only Gmail operations.
type Client struct {
	api     API
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records Google API metrics for every call.
func WithMetrics(m *instrumentation.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient returns a Client over api.
func NewClient(api API, opts ...ClientOption) *Client {
	c := &Client{api: api, logger: logging.Discard()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithService(c.logger, instrumentation.ServiceGmail)
	return c
}

// Search returns up to maxResults messages matching query, in the order
// Gmail returns them. The query is passed through unmodified. Only the
// first result page is read.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]MessageSummary, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	var msgs []*gmail.Message
	err := c.observe(ctx, instrumentation.OperationSearch, func(ctx context.Context) error {
		var err error
		msgs, err = c.api.ListMessages(ctx, query, int64(maxResults))
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(msgs) > maxResults {
		msgs = msgs[:maxResults]
	}
	summaries := make([]MessageSummary, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		summaries = append(summaries, MessageSummary{MessageID: m.Id, ThreadID: m.ThreadId})
	}
	return summaries, nil
}

// GetMessage fetches the full MIME representation of a message.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	return c.getMessage(ctx, instrumentation.OperationGet, messageID)
}

// GetMessageDetail fetches a message and flattens it.
func (c *Client) GetMessageDetail(ctx context.Context, messageID string, opts NormalizeOptions) (MessageDetail, error) {
	msg, err := c.getMessage(ctx, instrumentation.OperationGet, messageID)
	if err != nil {
		return MessageDetail{}, err
	}

	n := Normalize(msg, opts)
	c.logWarnings(ctx, messageID, n.Warnings)
	return n.Detail, nil
}

// GetAttachments fetches a message and lists its attachments. The result
// is never nil.
func (c *Client) GetAttachments(ctx context.Context, messageID string) ([]AttachmentMeta, error) {
	msg, err := c.getMessage(ctx, instrumentation.OperationAttachments, messageID)
	if err != nil {
		return nil, err
	}
	return NormalizeAttachments(msg), nil
}

// GetAttachmentData fetches the bytes of one attachment of a message. The
// attachment id must belong to messageID.
func (c *Client) GetAttachmentData(ctx context.Context, messageID, attachmentID string) (AttachmentData, error) {
	var body *gmail.MessagePartBody
	err := c.observe(ctx, instrumentation.OperationGetAttachment, func(ctx context.Context) error {
		var err error
		body, err = c.api.GetAttachment(ctx, messageID, attachmentID)
		return err
	})
	if err != nil {
		return AttachmentData{}, err
	}

	raw, err := decodeBase64(body.Data)
	if err != nil {
		return AttachmentData{}, &ProviderError{
			Kind: KindTransport,
			Op:   instrumentation.OperationGetAttachment,
			Err:  fmt.Errorf("failed to decode attachment data: %w", err),
		}
	}

	return AttachmentData{
		AttachmentID: attachmentID,
		Data:         base64.StdEncoding.EncodeToString(raw),
		Size:         int64(len(raw)),
	}, nil
}

// GetProfile returns the address and mailbox totals of the authorized
// account.
func (c *Client) GetProfile(ctx context.Context) (Profile, error) {
	var p *gmail.Profile
	err := c.observe(ctx, instrumentation.OperationProfile, func(ctx context.Context) error {
		var err error
		p, err = c.api.GetProfile(ctx)
		return err
	})
	if err != nil {
		return Profile{}, err
	}

	return Profile{
		EmailAddress:  p.EmailAddress,
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
		HistoryID:     p.HistoryId,
	}, nil
}

func (c *Client) getMessage(ctx context.Context, op, messageID string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := c.observe(ctx, op, func(ctx context.Context) error {
		var err error
		msg, err = c.api.GetMessage(ctx, messageID)
		return err
	})
	return msg, err
}

// observe runs one API call inside a span, records its metrics and maps
// its error.
func (c *Client) observe(ctx context.Context, op string, call func(context.Context) error) error {
	ctx, span := instrumentation.StartGmailSpan(ctx, op)
	defer span.End()

	start := time.Now()
	err := mapError(op, call(ctx))
	duration := time.Since(start)

	if err != nil {
		kind := KindOf(err)
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, op, instrumentation.StatusError, duration)
		c.metrics.RecordProviderError(ctx, op, kind)
		instrumentation.FinishSpan(span, err, kind)
		c.logger.WarnContext(ctx, "gmail call failed",
			logging.Operation(op),
			logging.Kind(kind),
			logging.Err(err))
		return err
	}

	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, op, instrumentation.StatusSuccess, duration)
	instrumentation.FinishSpan(span, nil, "")
	c.logger.DebugContext(ctx, "gmail call completed",
		logging.Operation(op),
		slog.Duration(logging.KeyDuration, duration))
	return nil
}

func (c *Client) logWarnings(ctx context.Context, messageID string, warnings []*ParseError) {
	for _, w := range warnings {
		c.logger.DebugContext(ctx, "recovered message parse problem",
			logging.MessageID(messageID),
			slog.String("field", w.Field),
			logging.Err(w))
	}
}
