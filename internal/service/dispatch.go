package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/acl"
	"github.com/chetandr-lohono/lohono-db-connect/internal/toolset"
	"github.com/chetandr-lohono/lohono-db-connect/pkg/mcp"
)

// ServerName and ServerVersion identify this MCP server in the handshake.
const (
	ServerName    = "lohono-db-connect"
	ServerVersion = "1.0.0"
)

// Dispatcher routes MCP JSON-RPC messages to the tool catalog. Transports
// hand it raw frames plus the identity bound to their session handle; the
// dispatcher resolves the effective identity per call.
type Dispatcher struct {
	catalog       *toolset.Catalog
	engine        *acl.Engine
	fallbackEmail string
	logger        *slog.Logger
}

// NewDispatcher wires the dispatch service. fallbackEmail is the identity of
// last resort for transports that carry none (single-user pipe setups).
func NewDispatcher(catalog *toolset.Catalog, engine *acl.Engine, fallbackEmail string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		catalog:       catalog,
		engine:        engine,
		fallbackEmail: fallbackEmail,
		logger:        logger,
	}
}

// Handle processes one inbound frame and returns the response bytes, or nil
// when no response is due (notifications, client-sent responses).
// sessionEmail is the identity the transport bound to this session handle.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte, sessionEmail string) []byte {
	msg, err := mcp.WrapMessage(raw)
	if err != nil {
		return mcp.NewErrorResponse(nil, mcp.ErrCodeParseError, "parse error: "+err.Error())
	}

	if !msg.IsRequest() {
		// Responses from the peer have nothing to dispatch to.
		return nil
	}
	if msg.IsNotification() {
		d.logger.DebugContext(ctx, "mcp notification", "method", msg.Method())
		return nil
	}

	id := msg.RawID()
	switch msg.Method() {
	case "initialize":
		return d.respond(ctx, id, map[string]any{
			"protocolVersion": mcp.ProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
			"serverInfo": map[string]any{
				"name":    ServerName,
				"version": ServerVersion,
			},
		})

	case "ping":
		return d.respond(ctx, id, map[string]any{})

	case "tools/list":
		email := d.engine.ResolveEmail(msg.UserEmail(), sessionEmail, d.fallbackEmail)
		descriptors := d.catalog.VisibleDescriptors(ctx, email)
		return d.respond(ctx, id, map[string]any{"tools": descriptors})

	case "tools/call":
		return d.handleToolCall(ctx, msg, sessionEmail)

	default:
		return mcp.NewErrorResponse(id, mcp.ErrCodeMethodNotFound,
			fmt.Sprintf("method not found: %s", msg.Method()))
	}
}

func (d *Dispatcher) handleToolCall(ctx context.Context, msg *mcp.Message, sessionEmail string) []byte {
	id := msg.RawID()
	params := msg.ParseParams()
	if params == nil {
		return mcp.NewErrorResponse(id, mcp.ErrCodeInvalidParams, "tools/call requires params")
	}

	name, _ := params["name"].(string)
	if name == "" {
		return mcp.NewErrorResponse(id, mcp.ErrCodeInvalidParams, "tools/call requires a tool name")
	}
	args, _ := params["arguments"].(map[string]any)

	email := d.engine.ResolveEmail(msg.UserEmail(), sessionEmail, d.fallbackEmail)
	result, err := d.catalog.Invoke(ctx, name, args, email)
	if err != nil {
		if errors.Is(err, toolset.ErrUnknownTool) {
			return mcp.NewErrorResponse(id, mcp.ErrCodeInvalidParams, err.Error())
		}
		return mcp.NewErrorResponse(id, mcp.ErrCodeInternal, err.Error())
	}
	return d.respond(ctx, id, result)
}

func (d *Dispatcher) respond(ctx context.Context, id json.RawMessage, result any) []byte {
	data, err := mcp.NewResultResponse(id, result)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to encode response", "error", err)
		return mcp.NewErrorResponse(id, mcp.ErrCodeInternal, "failed to encode response")
	}
	return data
}

// Toolset exposes the catalog for transports that list tools out of band.
func (d *Dispatcher) Toolset() *toolset.Catalog {
	return d.catalog
}
