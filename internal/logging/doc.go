// Package logging configures structured slog output for fieldrag.
// Logs are JSON lines written to a size-rotated file under ~/.fieldrag/logs/,
// optionally mirrored to stderr. The MCP server mode never touches stderr
// or stdout because stdout carries the JSON-RPC stream.
package logging
