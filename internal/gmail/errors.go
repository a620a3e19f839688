package gmail

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/teemow/gmail-mcp/internal/google"
	"github.com/teemow/gmail-mcp/internal/instrumentation"
)

// ErrorKind classifies a failed Gmail API call.
type ErrorKind string

const (
	KindRateLimited  ErrorKind = "RateLimited"
	KindNotFound     ErrorKind = "NotFound"
	KindInvalidQuery ErrorKind = "InvalidQuery"
	KindTransport    ErrorKind = "Transport"
)

// ProviderError reports a failed Gmail API call.
type ProviderError struct {
	Kind ErrorKind
	Op   string
	// Status is the HTTP status, or 0 when no response was received.
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("gmail %s failed (%s)", e.Op, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// KindLabel returns the qualified kind, e.g. "ProviderError.NotFound".
func (e *ProviderError) KindLabel() string {
	return "ProviderError." + string(e.Kind)
}

// ParseError reports a message header that could not be read. It is
// always recovered by leaving the field empty.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("cannot parse %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("cannot parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errMissingHeader = errors.New("header not present")

// rateLimitReasons are the googleapi error reasons Gmail uses for quota
// exhaustion on a 403.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

// mapError converts an error from the Gmail SDK into an *AuthError or a
// *ProviderError.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	// Token source failures surface wrapped in *url.Error.
	var authErr *google.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		// network failures, cancellation and decode errors
		return &ProviderError{Kind: KindTransport, Op: op, Err: err}
	}

	pe := &ProviderError{Op: op, Status: apiErr.Code, Err: err}
	switch {
	case apiErr.Code == http.StatusUnauthorized:
		return &google.AuthError{Reason: google.ReasonTokenRejected, Err: err}
	case apiErr.Code == http.StatusNotFound:
		pe.Kind = KindNotFound
	case apiErr.Code == http.StatusTooManyRequests:
		pe.Kind = KindRateLimited
	case apiErr.Code == http.StatusForbidden && isRateLimit(apiErr):
		pe.Kind = KindRateLimited
	case apiErr.Code == http.StatusBadRequest && op == instrumentation.OperationGetAttachment:
		// Gmail answers an attachment id that does not belong to the
		// message with 400 "Invalid attachment token".
		pe.Kind = KindNotFound
	case apiErr.Code == http.StatusBadRequest:
		pe.Kind = KindInvalidQuery
	default:
		pe.Kind = KindTransport
	}
	return pe
}

func isRateLimit(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if rateLimitReasons[item.Reason] {
			return true
		}
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "rate limit")
}

// KindOf returns the error kind label for err, as used in tool error
// results and metrics. Errors outside the taxonomy yield
// instrumentation.KindInternal.
func KindOf(err error) string {
	var authErr *google.AuthError
	if errors.As(err, &authErr) {
		return instrumentation.KindAuth
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.KindLabel()
	}
	return instrumentation.KindInternal
}
