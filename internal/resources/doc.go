// Package resources provides MCP resources for the authorized mailbox.
// Resources are read-only data that MCP clients can fetch without calling
// a tool.
//
//   - gmail://profile: address and message/thread totals of the account
package resources
