// Package mcpclient is the SSE-side MCP client: it connects to a remote MCP
// tool server, caches the advertised tool catalog, and relays tool calls.
//
// Wire shape: a GET on the server's /sse endpoint opens the event stream and
// the server's first event names the POST endpoint for this session. Requests
// go out as HTTP POSTs; responses come back as events on the stream and are
// correlated to callers by JSON-RPC id.
package mcpclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chetandr-lohono/lohono-db-connect/internal/config"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/tool"
	"github.com/chetandr-lohono/lohono-db-connect/pkg/mcp"
)

// Sentinel errors.
var (
	// ErrClosed indicates the bridge connection has been shut down.
	ErrClosed = errors.New("mcp bridge closed")

	// ErrToolNotFound indicates the named tool is not in the remote catalog.
	ErrToolNotFound = errors.New("tool not found in remote catalog")
)

// Bridge is a connected MCP client session.
type Bridge struct {
	serverURL   string
	postURL     string
	httpClient  *http.Client
	callTimeout time.Duration
	logger      *slog.Logger

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan rpcReply
	tools   []tool.Descriptor
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

type rpcReply struct {
	result json.RawMessage
	err    *rpcError
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// Connect opens the SSE stream, performs the MCP handshake, and warms the
// tool cache. The returned bridge holds a background reader goroutine until
// Close.
func Connect(ctx context.Context, cfg config.BridgeConfig, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		serverURL:   cfg.ServerURL,
		httpClient:  &http.Client{},
		callTimeout: config.MustDuration(cfg.CallTimeout),
		logger:      slog.Default(),
		pending:     map[int64]chan rpcReply{},
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, cfg.ServerURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open sse stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse stream rejected: status %d", resp.StatusCode)
	}

	endpointCh := make(chan string, 1)
	go b.readStream(resp.Body, endpointCh)

	connectTimeout := config.MustDuration(cfg.ConnectTimeout)
	select {
	case ep := <-endpointCh:
		post, err := resolveEndpoint(cfg.ServerURL, ep)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.postURL = post
	case <-time.After(connectTimeout):
		b.Close()
		return nil, errors.New("timed out waiting for sse endpoint event")
	case <-ctx.Done():
		b.Close()
		return nil, ctx.Err()
	}

	handshakeCtx, hcancel := context.WithTimeout(ctx, connectTimeout)
	defer hcancel()
	if err := b.initialize(handshakeCtx); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.Refresh(handshakeCtx); err != nil {
		b.Close()
		return nil, err
	}

	b.logger.InfoContext(ctx, "mcp bridge connected",
		"server", cfg.ServerURL, "tools", len(b.Tools()))
	return b, nil
}

// Close tears down the stream and fails all in-flight calls.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
	b.mu.Unlock()

	b.cancel()
	<-b.done
	b.httpClient.CloseIdleConnections()
}

// Tools returns the cached remote tool catalog.
func (b *Bridge) Tools() []tool.Descriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]tool.Descriptor, len(b.tools))
	copy(out, b.tools)
	return out
}

// Refresh re-fetches the remote tool catalog.
func (b *Bridge) Refresh(ctx context.Context) error {
	result, err := b.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return fmt.Errorf("tools/list failed: %w", err)
	}

	var listed struct {
		Tools []tool.Descriptor `json:"tools"`
	}
	if err := json.Unmarshal(result, &listed); err != nil {
		return fmt.Errorf("failed to decode tool list: %w", err)
	}

	b.mu.Lock()
	b.tools = listed.Tools
	b.mu.Unlock()
	return nil
}

// CallTool invokes a remote tool on behalf of userEmail and joins the text
// content blocks of the result. The second return reports the remote
// isError flag; transport failures come back as an error instead.
func (b *Bridge) CallTool(ctx context.Context, name string, args map[string]any, userEmail string) (string, bool, error) {
	if !b.hasTool(name) {
		return "", false, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}

	params := map[string]any{
		"name":      name,
		"arguments": args,
	}
	if userEmail != "" {
		params["_meta"] = map[string]any{"user_email": userEmail}
	}

	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	result, err := b.call(ctx, "tools/call", params)
	if err != nil {
		return "", false, fmt.Errorf("tools/call %q failed: %w", name, err)
	}

	var res tool.Result
	if err := json.Unmarshal(result, &res); err != nil {
		return "", false, fmt.Errorf("failed to decode tool result: %w", err)
	}
	return res.JoinedText(), res.IsError, nil
}

func (b *Bridge) hasTool(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// initialize runs the MCP handshake: initialize, then the initialized
// notification.
func (b *Bridge) initialize(ctx context.Context) error {
	_, err := b.call(ctx, "initialize", map[string]any{
		"protocolVersion": mcp.ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "db-connect-bridge",
			"version": "1.0.0",
		},
	})
	if err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}
	return b.notify(ctx, "notifications/initialized")
}

// call sends one request and waits for its correlated response.
func (b *Bridge) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := b.nextID.Add(1)
	ch := make(chan rpcReply, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.pending[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := b.post(ctx, map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}); err != nil {
		return nil, err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if reply.err != nil {
			return nil, reply.err
		}
		return reply.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// notify sends a fire-and-forget notification.
func (b *Bridge) notify(ctx context.Context, method string) error {
	return b.post(ctx, map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
	})
}

func (b *Bridge) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.postURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post rejected: status %d", resp.StatusCode)
	}
	return nil
}

// readStream consumes the SSE stream, delivering the endpoint event to the
// handshake and message events to their pending callers.
func (b *Bridge) readStream(body io.ReadCloser, endpointCh chan<- string) {
	defer close(b.done)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var event, data string
	flush := func() {
		if data == "" {
			return
		}
		switch event {
		case "endpoint":
			select {
			case endpointCh <- data:
			default:
			}
		case "message", "":
			b.dispatch([]byte(data))
		}
		event, data = "", ""
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data != "" {
				data += "\n"
			}
			data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	flush()

	// Stream gone: fail anything still waiting.
	b.mu.Lock()
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
	b.mu.Unlock()
}

// dispatch routes one response frame to its pending caller by id.
func (b *Bridge) dispatch(frame []byte) {
	var resp struct {
		ID     *int64          `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(frame, &resp); err != nil || resp.ID == nil {
		b.logger.Warn("dropping unparseable frame", "error", err)
		return
	}

	b.mu.Lock()
	ch, ok := b.pending[*resp.ID]
	if ok {
		delete(b.pending, *resp.ID)
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Warn("dropping frame for unknown request id", "id", *resp.ID)
		return
	}
	ch <- rpcReply{result: resp.Result, err: resp.Error}
}

// resolveEndpoint resolves the endpoint event payload (usually a relative
// path like "/messages?session_id=x") against the stream URL.
func resolveEndpoint(serverURL, endpoint string) (string, error) {
	base, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	return base.ResolveReference(ref).String(), nil
}
