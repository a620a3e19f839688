// Package common provides shared helpers for MCP tool handlers: the
// instrumentation wrapper every handler is registered through, and the
// JSON result envelope used for successes and failures.
package common
