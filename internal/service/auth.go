// Package service holds the application services: login/logout, the agent
// conversation loop, and MCP request dispatch. Services own orchestration;
// domain rules live in the domain packages and wire shapes in the adapters.
package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/acl"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/auth"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/identity"
)

// AuthService implements login, token validation, and logout against the
// staff directory and the auth-session store.
type AuthService struct {
	store  auth.Store
	engine *acl.Engine
	logger *slog.Logger
}

// NewAuthService wires the auth service.
func NewAuthService(store auth.Store, engine *acl.Engine, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{store: store, engine: engine, logger: logger}
}

// profile is the identity payload the login endpoint accepts: a base64
// encoded JSON document from the provider sign-in flow.
type profile struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Login decodes the provider profile, checks the staff allow-list, and
// issues or refreshes the session. Re-login keeps the existing token so
// other open clients stay valid.
func (s *AuthService) Login(ctx context.Context, encodedProfile string) (*auth.Session, error) {
	p, err := decodeProfile(encodedProfile)
	if err != nil {
		return nil, err
	}
	email := identity.CanonicalEmail(p.Email)

	staff, err := s.engine.ResolveACLs(ctx, email)
	if err != nil {
		if errors.Is(err, acl.ErrStaffNotFound) {
			s.logger.InfoContext(ctx, "login rejected", "email", email, "reason", "not staff")
			return nil, auth.ErrAccessDenied
		}
		return nil, fmt.Errorf("staff lookup failed: %w", err)
	}
	if !staff.Active {
		s.logger.InfoContext(ctx, "login rejected", "email", email, "reason", "inactive")
		return nil, auth.ErrAccessDenied
	}

	existing, err := s.store.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.store.UpdateProfile(ctx, email, p.Name, p.Picture); err != nil {
			return nil, fmt.Errorf("failed to refresh profile: %w", err)
		}
		existing.Name, existing.Picture = p.Name, p.Picture
		s.logger.InfoContext(ctx, "login refreshed", "email", email)
		return existing, nil

	case errors.Is(err, auth.ErrSessionNotFound):
		token, err := auth.GenerateToken()
		if err != nil {
			return nil, err
		}
		session := &auth.Session{
			Token:     token,
			UserID:    email,
			Email:     email,
			Name:      p.Name,
			Picture:   p.Picture,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.Create(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		s.logger.InfoContext(ctx, "login created", "email", email)
		return session, nil

	default:
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}
}

// Validate resolves a bearer token to its session.
func (s *AuthService) Validate(ctx context.Context, token string) (*auth.Session, error) {
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	session, err := s.store.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			return nil, auth.ErrInvalidToken
		}
		return nil, fmt.Errorf("token lookup failed: %w", err)
	}
	return session, nil
}

// Logout removes the session for a token. Unknown tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.store.DeleteByToken(ctx, token)
}

// decodeProfile unpacks the base64 JSON identity payload. Both standard and
// URL-safe encodings are accepted.
func decodeProfile(encoded string) (*profile, error) {
	if encoded == "" {
		return nil, auth.ErrInvalidProfile
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: bad base64", auth.ErrInvalidProfile)
		}
	}
	var p profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: bad JSON", auth.ErrInvalidProfile)
	}
	if p.Email == "" {
		return nil, fmt.Errorf("%w: missing email", auth.ErrInvalidProfile)
	}
	return &p, nil
}
