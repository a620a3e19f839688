// Package cmd implements the command-line interface for gmail-mcp.
//
// This package provides the following commands:
//   - serve: Start the MCP server on stdio (default)
//   - auth: Run the interactive OAuth flow and store the token
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// Settings come from flags, then environment variables (optionally loaded
// from a .env file), then built-in defaults. Logs always go to stderr
// because stdout carries the MCP protocol.
package cmd
