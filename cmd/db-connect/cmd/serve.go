package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/inbound/httpapi"
	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/inbound/mcpserver"
	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/outbound/llm"
	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/outbound/mcpclient"
	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/outbound/mongodb"
	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/outbound/postgres"
	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/outbound/redash"
	"github.com/chetandr-lohono/lohono-db-connect/internal/config"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/acl"
	"github.com/chetandr-lohono/lohono-db-connect/internal/observability"
	"github.com/chetandr-lohono/lohono-db-connect/internal/service"
	"github.com/chetandr-lohono/lohono-db-connect/internal/toolset"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the db-connect HTTP server.

One listener hosts three surfaces:
  - the REST API (auth, conversation sessions, agent endpoint)
  - the MCP SSE transport (GET /sse, POST /messages)
  - operational endpoints (GET /health, GET /metrics)

The agent loop runs tools against the in-process catalog by default. Set
bridge.server_url to route tool calls to a remote MCP server instead.

Examples:
  # Start with config file settings
  db-connect serve

  # Start in development mode against local Postgres and Mongo
  db-connect serve --dev

  # Start with a specific config file
  db-connect --config /path/to/config.yaml serve`,
	RunE: runServe,
}

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, local service defaults)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigWithFlags()
	if err != nil {
		return err
	}

	// stop() restores default signal handling so a second Ctrl+C is a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := observability.NewLogger(cfg.Server.LogLevel, cfg.DevMode)
	slog.SetDefault(logger)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	shutdownTracing, err := observability.SetupTracing(ctx, service.ServerName)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// Backends.
	app, err := buildToolBackends(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	mongo, err := mongodb.Connect(ctx, cfg.Mongo, mongodb.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	defer func() { _ = mongo.Close(context.Background()) }()

	// Services.
	authService := service.NewAuthService(mongo.AuthStore(), app.Engine, logger)
	dispatcher := service.NewDispatcher(app.Catalog, app.Engine, cfg.ACL.FallbackUserEmail, logger)
	sse := mcpserver.NewSSEServer(dispatcher, metrics, logger)

	model := llm.New(cfg.LLM, llm.WithLogger(logger), llm.WithMetrics(metrics))

	// Tool execution path for the agent loop: in-process catalog unless a
	// remote MCP server is configured.
	var runner service.ToolRunner = &service.CatalogRunner{Catalog: app.Catalog}
	if cfg.Bridge.ServerURL != "" {
		bridge, err := mcpclient.Connect(ctx, cfg.Bridge, mcpclient.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to connect MCP bridge: %w", err)
		}
		defer bridge.Close()
		runner = &service.BridgeRunner{Bridge: bridge}
		logger.Info("tool runner: remote MCP bridge", "server_url", cfg.Bridge.ServerURL)
	} else {
		logger.Info("tool runner: in-process catalog", "tools", len(app.Catalog.Descriptors()))
	}

	agent := service.NewAgent(mongo.ChatStore(), model, runner, metrics, logger)

	server := httpapi.New(httpapi.Config{
		Addr:        cfg.Server.HTTPAddr,
		Auth:        authService,
		Agent:       agent,
		Chats:       mongo.ChatStore(),
		Metrics:     metrics,
		Registry:    registry,
		Logger:      logger,
		MCPSSE:      sse.StreamHandler(),
		MCPMessages: sse.MessageHandler(),
		Database:    app.Pool,
		Mongo:       mongo,
	})

	logger.Info("db-connect starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"model", cfg.LLM.Model,
		"redash_configured", app.Redash.Configured(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	// Release open SSE streams first or Shutdown waits out its full timeout.
	sse.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		config.MustDuration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("db-connect stopped")
	return nil
}

// loadConfigWithFlags loads the raw config, applies the --dev flag, then
// finishes defaulting and validation.
func loadConfigWithFlags() (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// toolBackends bundles the tool-serving side of the application: the
// relational pool, the Redash client, the ACL engine over the staff table,
// and the catalog built on top of them. Shared by serve and mcp.
type toolBackends struct {
	Pool    *postgres.Pool
	Redash  *redash.Client
	Engine  *acl.Engine
	Catalog *toolset.Catalog
}

func buildToolBackends(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (*toolBackends, error) {
	pool, err := postgres.New(ctx, cfg.Database, postgres.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	aclRules, err := acl.LoadConfig(cfg.ACL.ConfigPath)
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to load ACL rules: %w", err)
	}
	engine := acl.NewEngine(aclRules, postgres.NewStaffStore(pool),
		acl.WithCacheTTL(config.MustDuration(cfg.ACL.CacheTTL)),
		acl.WithNegativeCacheTTL(config.MustDuration(cfg.ACL.NegativeCacheTTL)),
		acl.WithLogger(logger),
		acl.WithMetrics(metrics),
	)

	redashClient := redash.New(cfg.Redash, redash.WithLogger(logger))

	catalog, err := toolset.New(toolset.Deps{
		DB:      pool,
		Redash:  redashClient,
		Engine:  engine,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to build tool catalog: %w", err)
	}

	return &toolBackends{Pool: pool, Redash: redashClient, Engine: engine, Catalog: catalog}, nil
}

func (b *toolBackends) Close() {
	_ = b.Pool.Close()
}
