package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer) *slog.Logger {
	inner := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(&redactingHandler{inner: inner})
}

func TestRedactingHandlerMasksSensitiveAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.Info("login",
		slog.String("email", "a@lohono.com"),
		slog.String("token", "deadbeefcafe"),
		slog.String("api_key", "rk-12345"),
	)

	out := buf.String()
	if strings.Contains(out, "deadbeefcafe") {
		t.Errorf("token value leaked into log output: %s", out)
	}
	if strings.Contains(out, "rk-12345") {
		t.Errorf("api_key value leaked into log output: %s", out)
	}
	if !strings.Contains(out, "token=***") {
		t.Errorf("token not masked: %s", out)
	}
	if !strings.Contains(out, "email=a***@lohono.com") {
		t.Errorf("email not pattern-masked: %s", out)
	}
}

func TestRedactingHandlerMasksEmailsInValues(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.Info("denied for priya.sharma@lohono.com",
		slog.String("reason", "User priya.sharma@lohono.com lacks DB_VIEW"),
		slog.Int("attempts", 3),
	)

	out := buf.String()
	if strings.Contains(out, "priya.sharma@") {
		t.Errorf("email leaked into log output: %s", out)
	}
	if !strings.Contains(out, "p***@lohono.com") {
		t.Errorf("email not masked in message and values: %s", out)
	}
	if !strings.Contains(out, "attempts=3") {
		t.Errorf("non-string attr altered: %s", out)
	}
}

func TestRedactingHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf).With(slog.String("password", "hunter2"))

	logger.Info("connected")

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("password value leaked via WithAttrs: %s", out)
	}
	if !strings.Contains(out, "password=***") {
		t.Errorf("password not masked via WithAttrs: %s", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	ctx := WithLogger(context.Background(), logger)
	if got := LoggerFromContext(ctx); got != logger {
		t.Error("LoggerFromContext did not return the stored logger")
	}

	// Falls back to the default logger when nothing is stored.
	if got := LoggerFromContext(context.Background()); got == nil {
		t.Error("LoggerFromContext returned nil for empty context")
	}
}
