package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/mail"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/emersion/go-message/charset"
	gmail "google.golang.org/api/gmail/v1"
)

// NormalizeOptions tunes the flattening of a message.
type NormalizeOptions struct {
	// HTMLAsMarkdown renders an HTML-only body as Markdown instead of
	// plain text.
	HTMLAsMarkdown bool
}

// Normalized is the result of flattening one message.
type Normalized struct {
	Detail      MessageDetail
	Attachments []AttachmentMeta
	// Warnings lists recovered header and body problems.
	Warnings []*ParseError
}

// Normalize flattens msg. It never fails: unreadable headers and bodies are
// reported in Warnings and leave their field empty.
//
// The part tree is walked depth-first in provider order. Each leaf is
// handled by the first matching rule:
//   - text/plain that is not an attachment is appended to the body
//   - text/html that is not an attachment is kept, first one only
//   - a part with a filename that is not inline becomes an AttachmentMeta
//   - anything else, such as a cid-referenced inline image, is skipped
//
// The body is the newline-joined plain text parts. Only when the message
// has none does the first HTML part, stripped of markup, become the body.
func Normalize(msg *gmail.Message, opts NormalizeOptions) Normalized {
	var n Normalized
	n.Attachments = []AttachmentMeta{}
	if msg == nil {
		return n
	}

	n.Detail.MessageID = msg.Id
	n.Detail.ThreadID = msg.ThreadId
	n.readHeaders(msg.Payload)

	var (
		plain    []string
		sawPlain bool
		html     string
		sawHTML  bool
	)

	walkParts(msg.Payload, func(part *gmail.MessagePart) {
		if len(part.Parts) > 0 {
			return
		}

		mediaType := partMediaType(part)
		disposition, dispParams := partDisposition(part)
		filename := partFilename(part, dispParams)
		isAttachment := filename != "" || disposition == "attachment"

		switch {
		case mediaType == "text/plain" && !isAttachment:
			sawPlain = true
			text, err := decodeText(part)
			if err != nil {
				n.Warnings = append(n.Warnings, &ParseError{Field: "body", Value: part.PartId, Err: err})
				return
			}
			plain = append(plain, text)

		case mediaType == "text/html" && !isAttachment:
			if sawHTML {
				return
			}
			text, err := decodeText(part)
			if err != nil {
				n.Warnings = append(n.Warnings, &ParseError{Field: "body", Value: part.PartId, Err: err})
				return
			}
			html, sawHTML = text, true

		case filename != "" && disposition != "inline":
			if part.Body == nil || part.Body.AttachmentId == "" {
				return
			}
			n.Attachments = append(n.Attachments, AttachmentMeta{
				AttachmentID: part.Body.AttachmentId,
				FileName:     filename,
				MimeType:     mediaType,
				Size:         part.Body.Size,
			})
		}
	})

	switch {
	case sawPlain:
		n.Detail.BodyText = strings.Join(plain, "\n")
	case sawHTML:
		n.Detail.BodyText = htmlToText(html, opts)
	}
	return n
}

// NormalizeAttachments returns only the attachment list of msg.
func NormalizeAttachments(msg *gmail.Message) []AttachmentMeta {
	return Normalize(msg, NormalizeOptions{}).Attachments
}

func (n *Normalized) readHeaders(payload *gmail.MessagePart) {
	if payload == nil {
		n.Warnings = append(n.Warnings, &ParseError{Field: "Date", Err: errMissingHeader})
		return
	}

	n.Detail.Subject = decodeWords(headerValue(payload.Headers, "Subject"))
	n.Detail.From = decodeWords(headerValue(payload.Headers, "From"))
	n.Detail.To = decodeWords(headerValue(payload.Headers, "To"))

	date := headerValue(payload.Headers, "Date")
	if date == "" {
		n.Warnings = append(n.Warnings, &ParseError{Field: "Date", Err: errMissingHeader})
		return
	}
	t, err := mail.ParseDate(date)
	if err != nil {
		n.Warnings = append(n.Warnings, &ParseError{Field: "Date", Value: date, Err: err})
		return
	}
	n.Detail.ReceivedAt = &t
}

// walkParts visits part and its descendants depth-first, containers before
// their children.
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}

	fn(part)

	for _, subpart := range part.Parts {
		walkParts(subpart, fn)
	}
}

// decodeText decodes a text part body to valid UTF-8. Bytes in a declared
// non-UTF-8 charset are converted; invalid sequences become U+FFFD.
func decodeText(part *gmail.MessagePart) (string, error) {
	if part.Body == nil || part.Body.Data == "" {
		return "", nil
	}

	raw, err := decodeBase64(part.Body.Data)
	if err != nil {
		return "", fmt.Errorf("failed to decode body: %w", err)
	}

	if cs := partCharset(part); cs != "" && cs != "utf-8" && cs != "us-ascii" {
		r, err := charset.Reader(cs, bytes.NewReader(raw))
		if err == nil {
			if converted, err := io.ReadAll(r); err == nil {
				raw = converted
			}
		}
	}

	return strings.ToValidUTF8(string(raw), "\uFFFD"), nil
}

// decodeBase64 decodes Gmail's base64url payloads. Padded, unpadded and
// standard-alphabet variants are accepted.
func decodeBase64(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	} {
		decoded, err := enc.DecodeString(data)
		if err == nil {
			return decoded, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func htmlToText(html string, opts NormalizeOptions) string {
	if opts.HTMLAsMarkdown {
		md, err := htmltomarkdown.ConvertString(html)
		if err == nil {
			return strings.TrimSpace(md)
		}
	}
	return stripHTML(html)
}
