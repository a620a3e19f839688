package gmail

import "time"

// MessageSummary identifies one search hit.
type MessageSummary struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
}

// MessageDetail is the flattened view of one message.
type MessageDetail struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
	Subject   string `json:"subject"`
	From      string `json:"from"`
	To        string `json:"to"`
	// ReceivedAt keeps the offset of the Date header. Nil when the header is
	// missing or unparsable.
	ReceivedAt *time.Time `json:"received_at"`
	BodyText   string     `json:"body_text"`
}

// AttachmentMeta describes one attachment of a message. Size is the size
// declared by Gmail.
type AttachmentMeta struct {
	AttachmentID string `json:"attachment_id"`
	FileName     string `json:"file_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
}

// AttachmentData holds attachment bytes as standard base64. Size is the
// decoded length of Data.
type AttachmentData struct {
	AttachmentID string `json:"attachment_id"`
	Data         string `json:"data"`
	Size         int64  `json:"size"`
}

// Profile is the mailbox summary of the authorized account.
type Profile struct {
	EmailAddress  string `json:"email_address"`
	MessagesTotal int64  `json:"messages_total"`
	ThreadsTotal  int64  `json:"threads_total"`
	HistoryID     uint64 `json:"history_id"`
}
