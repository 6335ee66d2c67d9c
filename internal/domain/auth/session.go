// Package auth defines bearer-token auth sessions and their store contract.
//
// An auth session binds an opaque token to a staff identity. Sessions have
// no expiry; they live until explicit logout. One session per email: a
// repeat login refreshes profile fields but keeps the existing token.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the auth layer.
var (
	// ErrSessionNotFound indicates no session matches the token or email.
	ErrSessionNotFound = errors.New("auth session not found")

	// ErrInvalidProfile indicates the identity payload could not be decoded
	// or carried no email.
	ErrInvalidProfile = errors.New("invalid identity profile")

	// ErrAccessDenied indicates the email is not an active staff member.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidToken indicates the bearer token matches no session.
	ErrInvalidToken = errors.New("invalid token")
)

// Session is a persisted auth session.
type Session struct {
	// Token is the opaque bearer credential. Unique.
	Token string `bson:"token" json:"-"`

	// UserID is the canonical identifier (equal to Email).
	UserID string `bson:"userId" json:"userId"`

	// Email is the canonical staff email. Unique.
	Email string `bson:"email" json:"email"`

	// Name and Picture mirror the identity provider profile and are
	// refreshed on every login.
	Name    string `bson:"name" json:"name,omitempty"`
	Picture string `bson:"picture" json:"picture,omitempty"`

	// CreatedAt is when the token was first issued.
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Store persists auth sessions. Implemented by the mongodb adapter.
type Store interface {
	// Create inserts a new session. Fails if the token or email collides.
	Create(ctx context.Context, session *Session) error

	// GetByToken returns the session for a bearer token.
	// Returns ErrSessionNotFound if absent.
	GetByToken(ctx context.Context, token string) (*Session, error)

	// GetByEmail returns the session for an email.
	// Returns ErrSessionNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*Session, error)

	// UpdateProfile refreshes name and picture for an existing session.
	UpdateProfile(ctx context.Context, email, name, picture string) error

	// DeleteByToken removes the session for a bearer token.
	// Deleting an absent token is not an error.
	DeleteByToken(ctx context.Context, token string) error
}

// GenerateToken creates a cryptographically random 64-hex-char token.
func GenerateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
