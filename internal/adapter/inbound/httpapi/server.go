// Package httpapi is the REST surface: auth, conversation sessions, the
// agent endpoint, health, and metrics. The MCP SSE transport mounts onto the
// same listener.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chetandr-lohono/lohono-db-connect/internal/ctxkey"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/chat"
	"github.com/chetandr-lohono/lohono-db-connect/internal/observability"
	"github.com/chetandr-lohono/lohono-db-connect/internal/service"
)

// HealthChecker reports one backend's liveness.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Config carries the server dependencies.
type Config struct {
	Addr     string
	Auth     *service.AuthService
	Agent    *service.Agent
	Chats    chat.Store
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Logger   *slog.Logger

	// MCPSSE and MCPMessages are the MCP transport handlers, mounted at
	// GET /sse and POST /messages. Nil disables the transport.
	MCPSSE      http.Handler
	MCPMessages http.Handler

	// Health backends, probed by GET /health.
	Database HealthChecker
	Mongo    HealthChecker
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	auth       *service.AuthService
	agent      *service.Agent
	chats      chat.Store
	metrics    *observability.Metrics
	logger     *slog.Logger
	database   HealthChecker
	mongo      HealthChecker
}

// New assembles the mux and middleware chain.
func New(cfg Config) *Server {
	s := &Server{
		auth:     cfg.Auth,
		agent:    cfg.Agent,
		chats:    cfg.Chats,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		database: cfg.Database,
		mongo:    cfg.Mongo,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/google", s.handleLogin)
	mux.HandleFunc("GET /auth/me", s.handleMe)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /health", s.handleHealth)

	if cfg.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}
	if cfg.MCPSSE != nil {
		mux.Handle("GET /sse", cfg.MCPSSE)
		mux.Handle("POST /messages", cfg.MCPMessages)
	}

	handler := s.withRequestID(s.withObservability(s.withAuth(mux)))
	s.httpServer = &http.Server{Addr: cfg.Addr, Handler: handler}
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the full middleware chain for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// writeJSON serializes a success payload.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError serializes an error payload carrying the correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	requestID, _ := r.Context().Value(ctxkey.RequestIDKey{}).(string)
	writeJSON(w, status, map[string]any{
		"error":      message,
		"request_id": requestID,
	})
}
