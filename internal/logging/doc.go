// Package logging holds the slog conventions of gmail-mcp: a text handler
// on stderr and a fixed set of attribute keys.
//
//	logger := logging.WithOperation(logger, "search")
//	logger.Warn("gmail call failed", logging.Kind(kind), logging.Err(err))
//
// Message bodies, attachment data and OAuth tokens are never logged.
// Message ids appear only in debug records.
package logging
