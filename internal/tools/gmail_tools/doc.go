// Package gmail_tools exposes the read-only Gmail tools over MCP.
//
// Tools:
//   - gmail.search_messages: message and thread ids matching a Gmail query
//   - gmail.get_message: headers and plain-text body of one message
//   - gmail.get_attachments: attachment metadata of one message
//   - gmail.get_attachment_data: base64 content of one attachment
//   - gmail.get_messages_batch: several messages at once, skipping failures
//
// The tools form a fixed dispatch table validated once at startup. Each
// call validates its arguments before touching the mailbox, and calls run
// one at a time. Results are indented JSON; failures are error results
// whose text is
//
//	{"error":{"kind":"ProviderError.NotFound","message":"..."}}
//
// where kind is one of AuthError, ProviderError.{RateLimited, NotFound,
// InvalidQuery, Transport} or DispatchError.{UnknownTool, InvalidInput}.
package gmail_tools
