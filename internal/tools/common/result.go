package common

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorBody is the error object of a failed tool result.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorEnvelope is the JSON text of a failed tool result:
//
//	{"error":{"kind":"ProviderError.NotFound","message":"..."}}
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResult returns a tool error result carrying kind and message.
func NewErrorResult(kind, message string) *mcp.CallToolResult {
	data, err := json.Marshal(ErrorEnvelope{Error: ErrorBody{Kind: kind, Message: message}})
	if err != nil {
		return mcp.NewToolResultError(message)
	}
	return mcp.NewToolResultError(string(data))
}

// NewJSONResult encodes v as indented JSON text.
func NewJSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ParseErrorResult extracts the error envelope from a failed tool result.
// It reports false when result is not an error or does not carry one.
func ParseErrorResult(result *mcp.CallToolResult) (ErrorBody, bool) {
	if result == nil || !result.IsError {
		return ErrorBody{}, false
	}
	for _, content := range result.Content {
		text, ok := mcp.AsTextContent(content)
		if !ok {
			continue
		}
		var env ErrorEnvelope
		if err := json.Unmarshal([]byte(text.Text), &env); err == nil && env.Error.Kind != "" {
			return env.Error, true
		}
	}
	return ErrorBody{}, false
}
