// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// LoggerKey is the context key type for the enriched logger.
// Used by HTTP middleware to store and retrieve the logger with request_id fields.
type LoggerKey struct{}

// RequestIDKey is the context key type for the correlation id attached to
// every inbound HTTP request and echoed in the X-Request-ID response header.
type RequestIDKey struct{}

// SessionHandleKey is the context key type for the MCP transport session
// handle. The SSE transport stores the per-connection handle here so that
// identity resolution reads the email bound to THIS connection rather than
// scanning a process-wide map.
type SessionHandleKey struct{}

// UserKey is the context key type for the authenticated user attached by the
// bearer-token middleware.
type UserKey struct{}
