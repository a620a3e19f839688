package gmail

import (
	"mime"
	"regexp"
	"strings"

	"github.com/emersion/go-message/charset"
	gmail "google.golang.org/api/gmail/v1"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// filenameParam matches a filename or name parameter in headers that
// mime.ParseMediaType rejects.
var filenameParam = regexp.MustCompile(`(?i)(?:^|;)\s*(?:file)?name\*?=(?:"([^"]*)"|([^;]+))`)

// headerValue returns the first header with the given name, compared
// case-insensitively.
func headerValue(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HeaderValue extracts a top-level header value from a Gmail message.
func HeaderValue(m *gmail.Message, header string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	return headerValue(m.Payload.Headers, header)
}

// decodeWords decodes RFC 2047 encoded-words. Undecodable input is
// returned unchanged.
func decodeWords(s string) string {
	if !strings.Contains(s, "=?") {
		return s
	}
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// mediaParams parses a Content-Type or Content-Disposition value. It falls
// back to a lenient scan when the value is not RFC 2045 compliant, which is
// common for raw non-ASCII filenames.
func mediaParams(value string) (string, map[string]string) {
	if value == "" {
		return "", nil
	}
	mediaType, params, err := mime.ParseMediaType(value)
	if err == nil {
		return mediaType, params
	}

	mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(value, ";", 2)[0]))
	params = map[string]string{}
	if m := filenameParam.FindStringSubmatch(value); m != nil {
		name := m[1]
		if name == "" {
			name = strings.TrimSpace(m[2])
		}
		params["filename"] = name
		params["name"] = name
	}
	return mediaType, params
}

// partMediaType returns the lower-cased media type of a part, without parameters.
func partMediaType(part *gmail.MessagePart) string {
	mt := part.MimeType
	if mt == "" {
		mt, _ = mediaParams(headerValue(part.Headers, "Content-Type"))
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// partDisposition returns the disposition type ("attachment", "inline" or
// "") and its parameters.
func partDisposition(part *gmail.MessagePart) (string, map[string]string) {
	return mediaParams(headerValue(part.Headers, "Content-Disposition"))
}

// partFilename resolves a part's filename from, in order, Gmail's filename
// field, the Content-Disposition filename and the Content-Type name. The
// result is RFC 2047 decoded.
func partFilename(part *gmail.MessagePart, dispParams map[string]string) string {
	name := part.Filename
	if name == "" {
		name = dispParams["filename"]
	}
	if name == "" {
		_, ctParams := mediaParams(headerValue(part.Headers, "Content-Type"))
		name = ctParams["name"]
	}
	return strings.TrimSpace(decodeWords(name))
}

// partCharset returns the charset parameter of a part's Content-Type.
func partCharset(part *gmail.MessagePart) string {
	_, params := mediaParams(headerValue(part.Headers, "Content-Type"))
	return strings.ToLower(params["charset"])
}
