package gmail_tools

import (
	"errors"
	"fmt"

	"github.com/teemow/gmail-mcp/internal/gmail"
)

// DispatchKind classifies a tool call rejected before it reached Gmail.
type DispatchKind string

const (
	KindUnknownTool  DispatchKind = "UnknownTool"
	KindInvalidInput DispatchKind = "InvalidInput"
)

// DispatchError is returned for calls to unregistered tools and for
// arguments that fail validation.
type DispatchError struct {
	Kind    DispatchKind
	Tool    string
	Message string
	Err     error
}

func (e *DispatchError) Error() string {
	if e.Tool == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Message)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// KindLabel returns the qualified kind, e.g. "DispatchError.InvalidInput".
func (e *DispatchError) KindLabel() string {
	return "DispatchError." + string(e.Kind)
}

func invalidInput(tool string, err error) error {
	return &DispatchError{Kind: KindInvalidInput, Tool: tool, Message: err.Error(), Err: err}
}

// ErrorKind returns the kind reported in the error envelope of a failed
// tool result.
func ErrorKind(err error) string {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.KindLabel()
	}
	return gmail.KindOf(err)
}
