// Package observability wires structured logging and tracing for the server.
package observability

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/chetandr-lohono/lohono-db-connect/internal/ctxkey"
)

// sensitiveKeys are attribute names whose values are masked in every log
// record. Tokens and keys must never reach log output, even at debug level.
var sensitiveKeys = map[string]bool{
	"token":         true,
	"password":      true,
	"api_key":       true,
	"apikey":        true,
	"secret":        true,
	"authorization": true,
}

// emailPattern matches email addresses inside string values so identities
// are masked wherever they appear, not only under known attribute names.
var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// maskEmails keeps the first character of the local part and the full domain,
// enough to correlate log lines without exposing the address.
func maskEmails(s string) string {
	return emailPattern.ReplaceAllStringFunc(s, func(m string) string {
		at := strings.Index(m, "@")
		return m[:1] + "***" + m[at:]
	})
}

// redactingHandler wraps a slog.Handler and masks sensitive attribute values.
type redactingHandler struct {
	inner slog.Handler
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, maskEmails(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &redactingHandler{inner: h.inner.WithAttrs(redacted)}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{inner: h.inner.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if sensitiveKeys[a.Key] {
		return slog.String(a.Key, "***")
	}
	if a.Value.Kind() == slog.KindString {
		if masked := maskEmails(a.Value.String()); masked != a.Value.String() {
			return slog.String(a.Key, masked)
		}
	}
	return a
}

// NewLogger builds the process logger: a text handler on stderr behind the
// redacting wrapper. DevMode forces debug level.
func NewLogger(level string, devMode bool) *slog.Logger {
	logLevel := ParseLogLevel(level)
	if devMode {
		logLevel = slog.LevelDebug
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	return slog.New(&redactingHandler{inner: inner})
}

// ParseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithLogger returns a context carrying the given logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxkey.LoggerKey{}, logger)
}

// LoggerFromContext returns the logger stored in the context, or the default
// slog logger when none is present. Middleware stores a request-scoped logger
// enriched with request_id; handlers retrieve it here.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
