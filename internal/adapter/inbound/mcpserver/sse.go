package mcpserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/chetandr-lohono/lohono-db-connect/internal/ctxkey"
	"github.com/chetandr-lohono/lohono-db-connect/internal/observability"
	"github.com/chetandr-lohono/lohono-db-connect/internal/service"
)

// maxFrameSize bounds one inbound POST body.
const maxFrameSize = 1024 * 1024

// sseSession is one open event stream. The email captured at stream setup is
// bound to the handle, so concurrent sessions with different identities
// never bleed into each other.
type sseSession struct {
	handle string
	email  string
	frames chan []byte
}

// SSEServer hosts the SSE transport: streams keyed by an opaque session
// handle, with inbound frames routed by the handle the client was given.
type SSEServer struct {
	dispatcher *service.Dispatcher
	metrics    *observability.Metrics
	logger     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*sseSession

	done      chan struct{}
	closeOnce sync.Once
}

// NewSSEServer wires the SSE transport.
func NewSSEServer(dispatcher *service.Dispatcher, metrics *observability.Metrics, logger *slog.Logger) *SSEServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEServer{
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		sessions:   map[string]*sseSession{},
		done:       make(chan struct{}),
	}
}

// StreamHandler serves GET /sse: allocates a session handle, binds the
// caller identity from X-User-Email, and streams response frames until the
// client disconnects.
func (s *SSEServer) StreamHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		session := &sseSession{
			handle: uuid.NewString(),
			email:  r.Header.Get("X-User-Email"),
			frames: make(chan []byte, 16),
		}
		s.register(session)
		defer s.unregister(session.handle)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		fmt.Fprintf(w, "event: endpoint\ndata: /messages?session_id=%s\n\n", session.handle)
		flusher.Flush()

		s.logger.InfoContext(r.Context(), "sse session opened",
			"handle", session.handle, "email", session.email)

		for {
			select {
			case frame := <-session.frames:
				fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame)
				flusher.Flush()
			case <-r.Context().Done():
				s.logger.InfoContext(r.Context(), "sse session closed", "handle", session.handle)
				return
			case <-s.done:
				s.logger.Info("sse session closed by shutdown", "handle", session.handle)
				return
			}
		}
	})
}

// MessageHandler serves POST /messages: routes the frame to the session
// named by the query parameter and dispatches under that session's identity.
// The handle rides the request context so downstream code sees exactly the
// session this request arrived on.
func (s *SSEServer) MessageHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle := r.URL.Query().Get("session_id")
		session := s.lookup(handle)
		if session == nil {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameSize+1))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		if len(body) > maxFrameSize {
			http.Error(w, "frame too large", http.StatusRequestEntityTooLarge)
			return
		}

		ctx := context.WithValue(r.Context(), ctxkey.SessionHandleKey{}, session.handle)
		resp := s.dispatcher.Handle(ctx, body, session.email)

		w.WriteHeader(http.StatusAccepted)

		if resp == nil {
			return
		}
		select {
		case session.frames <- resp:
		case <-r.Context().Done():
		}
	})
}

// Shutdown releases every open stream so the HTTP server's graceful shutdown
// does not wait out its timeout on long-lived SSE connections. Safe to call
// more than once.
func (s *SSEServer) Shutdown() {
	s.closeOnce.Do(func() { close(s.done) })
}

// SessionCount reports the number of open streams.
func (s *SSEServer) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SSEServer) register(session *sseSession) {
	s.mu.Lock()
	s.sessions[session.handle] = session
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveSSESessions.Inc()
	}
}

func (s *SSEServer) unregister(handle string) {
	s.mu.Lock()
	delete(s.sessions, handle)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveSSESessions.Dec()
	}
}

func (s *SSEServer) lookup(handle string) *sseSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[handle]
}
