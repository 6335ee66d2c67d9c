// Package mcpserver hosts the MCP tool server transports: the line-delimited
// stdio pipe and the SSE pair (GET /sse stream, POST /messages inbound).
package mcpserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/chetandr-lohono/lohono-db-connect/internal/service"
)

// Scanner limits for one JSON-RPC line. Tool results carry whole query
// outputs, so the ceiling is generous.
const (
	scanBufSize = 256 * 1024
	scanMaxSize = 1024 * 1024
)

// ServeStdio reads line-delimited JSON-RPC from in and writes responses to
// out, one per line. It returns when in closes or ctx is cancelled. The pipe
// has no per-session identity; the dispatcher's fallback applies.
func ServeStdio(ctx context.Context, in io.Reader, out io.Writer, dispatcher *service.Dispatcher, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "mcp stdio transport ready")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, scanBufSize), scanMaxSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := dispatcher.Handle(ctx, line, "")
		if resp == nil {
			continue
		}
		if _, err := fmt.Fprintf(out, "%s\n", resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdin read failed: %w", err)
	}

	logger.InfoContext(ctx, "mcp stdio transport closed")
	return nil
}
