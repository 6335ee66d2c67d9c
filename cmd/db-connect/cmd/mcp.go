package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/inbound/mcpserver"
	"github.com/chetandr-lohono/lohono-db-connect/internal/observability"
	"github.com/chetandr-lohono/lohono-db-connect/internal/service"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP over stdin/stdout",
	Long: `Serve the MCP tool server over the stdio pipe for a single client,
one line-delimited JSON-RPC message per line.

The pipe carries no per-session identity. Callers identify themselves via
params._meta.user_email; calls without one fall back to
acl.fallback_user_email. Logs go to stderr so stdout stays a clean
protocol stream.

Mongo and the LLM are not needed in this mode; only the database, the ACL
rules file, and (optionally) Redash are dialed.

Example Claude Desktop entry:
  {"command": "db-connect", "args": ["mcp"]}`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, local service defaults)")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigWithFlags()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(cfg.Server.LogLevel, cfg.DevMode)
	slog.SetDefault(logger)

	// Metrics are still collected for the engine and catalog counters, but
	// without an HTTP listener there is nothing scraping them.
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	app, err := buildToolBackends(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	dispatcher := service.NewDispatcher(app.Catalog, app.Engine, cfg.ACL.FallbackUserEmail, logger)

	logger.Info("db-connect mcp pipe starting",
		"version", Version,
		"tools", len(app.Catalog.Descriptors()),
		"fallback_email", cfg.ACL.FallbackUserEmail,
	)

	if err := mcpserver.ServeStdio(ctx, os.Stdin, os.Stdout, dispatcher, logger); err != nil {
		return fmt.Errorf("mcp pipe failed: %w", err)
	}
	return nil
}
