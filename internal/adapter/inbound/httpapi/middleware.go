package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chetandr-lohono/lohono-db-connect/internal/ctxkey"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/auth"
	"github.com/chetandr-lohono/lohono-db-connect/internal/observability"
)

// publicPrefixes are routes reachable without a bearer token. The MCP SSE
// transport does its own identity binding and is mounted outside the gate.
var publicPrefixes = []string{"/auth/", "/health", "/metrics", "/sse", "/messages"}

func isPublicRoute(path string) bool {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestID attaches a correlation id to the request context and echoes
// it in the X-Request-ID response header. Inbound ids are honored so a
// gateway's id follows the request through the logs.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), ctxkey.RequestIDKey{}, requestID)
		logger := s.logger.With("request_id", requestID)
		ctx = observability.WithLogger(ctx, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withObservability records request metrics and an access log line.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Method + " " + r.URL.Path
		if s.metrics != nil {
			s.metrics.RequestsTotal.WithLabelValues(route, http.StatusText(rec.status)).Inc()
			s.metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
		observability.LoggerFromContext(r.Context()).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// withAuth gates non-public routes behind bearer-token validation and puts
// the session on the context.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicRoute(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		session, err := s.auth.Validate(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid or missing token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxkey.UserKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// sessionFromContext returns the authenticated session set by withAuth.
func sessionFromContext(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(ctxkey.UserKey{}).(*auth.Session)
	return session
}
