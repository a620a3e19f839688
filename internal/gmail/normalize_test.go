package gmail

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
)

func b64url(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func hdr(name, value string) *gmail.MessagePartHeader {
	return &gmail.MessagePartHeader{Name: name, Value: value}
}

func leaf(mimeType, body string, headers ...*gmail.MessagePartHeader) *gmail.MessagePart {
	return &gmail.MessagePart{
		MimeType: mimeType,
		Headers:  headers,
		Body:     &gmail.MessagePartBody{Data: b64url(body), Size: int64(len(body))},
	}
}

func attachment(mimeType, filename, attachmentID string, size int64, headers ...*gmail.MessagePartHeader) *gmail.MessagePart {
	return &gmail.MessagePart{
		MimeType: mimeType,
		Filename: filename,
		Headers:  headers,
		Body:     &gmail.MessagePartBody{AttachmentId: attachmentID, Size: size},
	}
}

func multipart(mimeType string, parts ...*gmail.MessagePart) *gmail.MessagePart {
	return &gmail.MessagePart{MimeType: mimeType, Parts: parts}
}

func message(payload *gmail.MessagePart) *gmail.Message {
	return &gmail.Message{Id: "msg-1", ThreadId: "thread-1", Payload: payload}
}

func TestNormalize_ReportScenario(t *testing.T) {
	root := multipart("multipart/mixed",
		leaf("text/plain", "Hello"),
		attachment("application/pdf", "", "att-1", 5120,
			hdr("Content-Type", `application/pdf; name="=?UTF-8?B?cmVwb3J0LnBkZg==?="`),
			hdr("Content-Disposition", `attachment; filename="=?UTF-8?B?cmVwb3J0LnBkZg==?="`)),
	)

	n := Normalize(message(root), NormalizeOptions{})

	assert.Equal(t, "Hello", n.Detail.BodyText)
	require.Len(t, n.Attachments, 1)
	assert.Equal(t, AttachmentMeta{
		AttachmentID: "att-1",
		FileName:     "report.pdf",
		MimeType:     "application/pdf",
		Size:         5120,
	}, n.Attachments[0])
}

func TestNormalize_Body(t *testing.T) {
	tests := []struct {
		name    string
		payload *gmail.MessagePart
		opts    NormalizeOptions
		want    string
	}{
		{
			name:    "single plain part",
			payload: leaf("text/plain", "just text"),
			want:    "just text",
		},
		{
			name: "plain parts at any depth are joined in order",
			payload: multipart("multipart/mixed",
				leaf("text/plain", "first"),
				multipart("multipart/alternative",
					multipart("multipart/related",
						leaf("text/plain", "second"),
					),
					leaf("text/html", "<p>ignored</p>"),
				),
				leaf("text/plain", "third"),
			),
			want: "first\nsecond\nthird",
		},
		{
			name: "html fallback uses the first html part only",
			payload: multipart("multipart/mixed",
				leaf("text/html", "<div>Hello <b>World</b></div><p>Bye &amp; thanks</p>"),
				leaf("text/html", "<p>second</p>"),
			),
			want: "Hello World\nBye & thanks",
		},
		{
			name: "html seen before plain is not used",
			payload: multipart("multipart/alternative",
				leaf("text/html", "<p>rich</p>"),
				leaf("text/plain", "plain"),
			),
			want: "plain",
		},
		{
			name:    "script and style are dropped",
			payload: leaf("text/html", "<style>p{color:red}</style><p>visible</p><script>alert(1)</script>"),
			want:    "visible",
		},
		{
			name:    "html as markdown",
			payload: leaf("text/html", "<p>Hello <strong>World</strong></p>"),
			opts:    NormalizeOptions{HTMLAsMarkdown: true},
			want:    "Hello **World**",
		},
		{
			name: "plain attachment is not body text",
			payload: multipart("multipart/mixed",
				leaf("text/plain", "body"),
				&gmail.MessagePart{
					MimeType: "text/plain",
					Filename: "notes.txt",
					Body:     &gmail.MessagePartBody{AttachmentId: "att-notes", Size: 4},
				},
			),
			want: "body",
		},
		{
			name: "plain part with attachment disposition is not body text",
			payload: multipart("multipart/mixed",
				leaf("text/plain", "body"),
				leaf("text/plain", "log line", hdr("Content-Disposition", "attachment")),
			),
			want: "body",
		},
		{
			name:    "invalid utf-8 is replaced",
			payload: leaf("text/plain", "caf\xe9"),
			want:    "caf\uFFFD",
		},
		{
			name:    "declared latin-1 charset is converted",
			payload: leaf("text/plain", "caf\xe9", hdr("Content-Type", "text/plain; charset=iso-8859-1")),
			want:    "café",
		},
		{
			name:    "no text parts",
			payload: multipart("multipart/mixed", attachment("image/png", "a.png", "att-a", 10)),
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Normalize(message(tt.payload), tt.opts)
			assert.Equal(t, tt.want, n.Detail.BodyText)
		})
	}
}

func TestNormalize_Attachments(t *testing.T) {
	tests := []struct {
		name      string
		payload   *gmail.MessagePart
		wantNames []string
	}{
		{
			name: "inline cid image is skipped",
			payload: multipart("multipart/related",
				leaf("text/html", `<img src="cid:logo">`),
				&gmail.MessagePart{
					MimeType: "image/png",
					Headers:  []*gmail.MessagePartHeader{hdr("Content-ID", "<logo>"), hdr("Content-Disposition", "inline")},
					Body:     &gmail.MessagePartBody{AttachmentId: "att-logo", Size: 100},
				},
			),
			wantNames: []string{},
		},
		{
			name: "inline part with a filename is skipped",
			payload: multipart("multipart/related",
				attachment("image/png", "logo.png", "att-logo", 100, hdr("Content-Disposition", `inline; filename="logo.png"`)),
			),
			wantNames: []string{},
		},
		{
			name: "filename from content-disposition",
			payload: multipart("multipart/mixed",
				attachment("text/csv", "", "att-csv", 42, hdr("Content-Disposition", `attachment; filename="data.csv"`)),
			),
			wantNames: []string{"data.csv"},
		},
		{
			name: "filename from content-type name",
			payload: multipart("multipart/mixed",
				attachment("application/zip", "", "att-zip", 42, hdr("Content-Type", `application/zip; name="archive.zip"`)),
			),
			wantNames: []string{"archive.zip"},
		},
		{
			name: "rfc 2231 filename",
			payload: multipart("multipart/mixed",
				attachment("application/pdf", "", "att-cv", 42, hdr("Content-Disposition", `attachment; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`)),
			),
			wantNames: []string{"résumé.pdf"},
		},
		{
			name: "unquoted encoded-word filename",
			payload: multipart("multipart/mixed",
				attachment("application/pdf", "", "att-q", 42, hdr("Content-Disposition", `attachment; filename==?ISO-8859-1?Q?r=E9sum=E9.pdf?=`)),
			),
			wantNames: []string{"résumé.pdf"},
		},
		{
			name: "nested attachments keep traversal order",
			payload: multipart("multipart/mixed",
				attachment("image/jpeg", "one.jpg", "att-1", 1),
				multipart("multipart/mixed",
					attachment("image/jpeg", "two.jpg", "att-2", 2),
				),
				attachment("image/jpeg", "three.jpg", "att-3", 3),
			),
			wantNames: []string{"one.jpg", "two.jpg", "three.jpg"},
		},
		{
			name: "filename without attachment id is skipped",
			payload: multipart("multipart/mixed",
				&gmail.MessagePart{MimeType: "text/calendar", Filename: "invite.ics", Body: &gmail.MessagePartBody{Data: b64url("BEGIN:VCALENDAR")}},
			),
			wantNames: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			atts := NormalizeAttachments(message(tt.payload))
			require.NotNil(t, atts)

			names := make([]string, 0, len(atts))
			for _, a := range atts {
				names = append(names, a.FileName)
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestNormalize_DeclaredSizeIsKept(t *testing.T) {
	atts := NormalizeAttachments(message(multipart("multipart/mixed",
		attachment("application/octet-stream", "blob.bin", "att-blob", 987654),
	)))

	require.Len(t, atts, 1)
	assert.Equal(t, int64(987654), atts[0].Size)
}

func TestNormalize_Headers(t *testing.T) {
	t.Run("headers from the outermost part", func(t *testing.T) {
		root := multipart("multipart/mixed",
			leaf("text/plain", "body", hdr("Subject", "inner subject")),
		)
		root.Headers = []*gmail.MessagePartHeader{
			hdr("subject", "=?UTF-8?Q?Caf=C3=A9_meeting?="),
			hdr("From", "Alice <alice@example.com>"),
			hdr("To", "bob@example.com"),
			hdr("Date", "Tue, 14 Jan 2025 09:30:00 +0900"),
		}

		n := Normalize(message(root), NormalizeOptions{})

		assert.Equal(t, "msg-1", n.Detail.MessageID)
		assert.Equal(t, "thread-1", n.Detail.ThreadID)
		assert.Equal(t, "Café meeting", n.Detail.Subject)
		assert.Equal(t, "Alice <alice@example.com>", n.Detail.From)
		assert.Equal(t, "bob@example.com", n.Detail.To)
		require.NotNil(t, n.Detail.ReceivedAt)
		_, offset := n.Detail.ReceivedAt.Zone()
		assert.Equal(t, 9*60*60, offset)
		assert.True(t, n.Detail.ReceivedAt.Equal(time.Date(2025, 1, 14, 0, 30, 0, 0, time.UTC)))
		assert.Empty(t, n.Warnings)
	})

	tests := []struct {
		name    string
		headers []*gmail.MessagePartHeader
	}{
		{name: "missing date", headers: []*gmail.MessagePartHeader{hdr("Subject", "s")}},
		{name: "unparsable date", headers: []*gmail.MessagePartHeader{hdr("Date", "yesterday-ish")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := leaf("text/plain", "body", tt.headers...)

			n := Normalize(message(root), NormalizeOptions{})

			assert.Nil(t, n.Detail.ReceivedAt)
			assert.Equal(t, "body", n.Detail.BodyText)
			require.Len(t, n.Warnings, 1)
			assert.Equal(t, "Date", n.Warnings[0].Field)
		})
	}
}

func TestNormalize_ReceivedAtJSON(t *testing.T) {
	root := leaf("text/plain", "x", hdr("Date", "Mon, 2 Jun 2025 17:04:05 -0700"))

	data, err := json.Marshal(Normalize(message(root), NormalizeOptions{}).Detail)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"received_at":"2025-06-02T17:04:05-07:00"`)

	data, err = json.Marshal(Normalize(message(leaf("text/plain", "x")), NormalizeOptions{}).Detail)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"received_at":null`)
}

func TestNormalize_Idempotent(t *testing.T) {
	root := multipart("multipart/mixed",
		leaf("text/plain", "Hello"),
		multipart("multipart/alternative", leaf("text/plain", "again"), leaf("text/html", "<p>x</p>")),
		attachment("application/pdf", "a.pdf", "att-a", 10),
	)
	root.Headers = []*gmail.MessagePartHeader{hdr("Date", "Tue, 14 Jan 2025 09:30:00 +0900")}
	msg := message(root)

	first, err := json.Marshal(Normalize(msg, NormalizeOptions{}))
	require.NoError(t, err)
	second, err := json.Marshal(Normalize(msg, NormalizeOptions{}))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNormalize_NilMessage(t *testing.T) {
	n := Normalize(nil, NormalizeOptions{})
	assert.NotNil(t, n.Attachments)
	assert.Empty(t, n.Detail.BodyText)
}

func TestDecodeBase64(t *testing.T) {
	want := []byte{0xfb, 0xff, 0xfe, 'h', 'i'}

	for name, data := range map[string]string{
		"url padded":   base64.URLEncoding.EncodeToString(want),
		"url unpadded": base64.RawURLEncoding.EncodeToString(want),
		"std padded":   base64.StdEncoding.EncodeToString(want),
	} {
		t.Run(name, func(t *testing.T) {
			got, err := decodeBase64(data)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := decodeBase64("!!not base64!!")
	assert.Error(t, err)
}
