package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/auth"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/chat"
	"github.com/chetandr-lohono/lohono-db-connect/internal/observability"
)

// DefaultSessionTitle names sessions before the first message titles them.
const DefaultSessionTitle = "New chat"

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Credential string `json:"credential"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := s.auth.Login(r.Context(), body.Credential)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidProfile):
			writeError(w, r, http.StatusBadRequest, "invalid identity payload")
		case errors.Is(err, auth.ErrAccessDenied):
			writeError(w, r, http.StatusForbidden, "access restricted to active staff")
		default:
			s.internalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": session.Token,
		"user": map[string]any{
			"userId":  session.UserID,
			"email":   session.Email,
			"name":    session.Name,
			"picture": session.Picture,
		},
	})
}

// handleMe validates its own bearer token: /auth/* sits outside the gate so
// login can pass through, but identity endpoints still need the token.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	session, err := s.auth.Validate(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid or missing token")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), bearerToken(r)); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged out"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	user := sessionFromContext(r.Context())
	sessions, err := s.chats.ListSessions(r.Context(), user.UserID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	user := sessionFromContext(r.Context())

	var body struct {
		Title string `json:"title"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if body.Title == "" {
		body.Title = DefaultSessionTitle
	}

	now := time.Now().UTC()
	session := &chat.Session{
		ID:        uuid.NewString(),
		UserID:    user.UserID,
		Title:     body.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.chats.CreateSession(r.Context(), session); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	user := sessionFromContext(r.Context())

	session, ok := s.ownedSession(w, r, r.PathValue("id"), user.UserID)
	if !ok {
		return
	}

	messages, err := s.chats.ListMessages(r.Context(), session.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  session,
		"messages": messages,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	user := sessionFromContext(r.Context())

	session, ok := s.ownedSession(w, r, r.PathValue("id"), user.UserID)
	if !ok {
		return
	}

	if err := s.chats.DeleteSession(r.Context(), session.ID); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	user := sessionFromContext(r.Context())

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		writeError(w, r, http.StatusBadRequest, "message is required")
		return
	}

	appended, err := s.agent.SendMessage(r.Context(), r.PathValue("id"), user.UserID, body.Message)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			writeError(w, r, http.StatusNotFound, "session not found")
			return
		}
		s.internalError(w, r, err)
		return
	}
	assistantText, toolCalls := chat.SummarizeExchange(appended)
	writeJSON(w, http.StatusOK, map[string]any{
		"assistantText": assistantText,
		"toolCalls":     toolCalls,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{}
	probe := func(name string, c HealthChecker) {
		if c == nil {
			return
		}
		if err := c.Ping(ctx); err != nil {
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			return
		}
		checks[name] = "up"
	}
	probe("database", s.database)
	probe("mongo", s.mongo)

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

// ownedSession fetches a session and enforces ownership. Foreign sessions
// read as 404 so existence is not disclosed.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request, sessionID, userID string) (*chat.Session, bool) {
	session, err := s.chats.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			writeError(w, r, http.StatusNotFound, "session not found")
		} else {
			s.internalError(w, r, err)
		}
		return nil, false
	}
	if session.UserID != userID {
		writeError(w, r, http.StatusNotFound, "session not found")
		return nil, false
	}
	return session, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("request failed",
		"path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "internal error")
}
