package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/auth"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/identity"
)

// AuthStore persists bearer-token auth sessions.
type AuthStore struct {
	client *Client
}

var _ auth.Store = (*AuthStore)(nil)

func (s *AuthStore) collection() *mongo.Collection {
	return s.client.db.Collection(authSessionsCollection)
}

// Create inserts a new auth session. The unique indexes on token and email
// reject collisions at the store level.
func (s *AuthStore) Create(ctx context.Context, session *auth.Session) error {
	ctx, cancel := s.client.opCtx(ctx)
	defer cancel()

	if _, err := s.collection().InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to create auth session: %w", err)
	}
	return nil
}

// GetByToken returns the session holding a bearer token.
func (s *AuthStore) GetByToken(ctx context.Context, token string) (*auth.Session, error) {
	ctx, cancel := s.client.opCtx(ctx)
	defer cancel()

	var session auth.Session
	err := s.collection().FindOne(ctx, bson.M{"token": token}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get auth session by token: %w", err)
	}
	return &session, nil
}

// GetByEmail returns the session for a canonical email.
func (s *AuthStore) GetByEmail(ctx context.Context, email string) (*auth.Session, error) {
	ctx, cancel := s.client.opCtx(ctx)
	defer cancel()

	var session auth.Session
	err := s.collection().FindOne(ctx, bson.M{"email": identity.CanonicalEmail(email)}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get auth session by email: %w", err)
	}
	return &session, nil
}

// UpdateProfile refreshes the provider profile fields on re-login, leaving
// the token untouched.
func (s *AuthStore) UpdateProfile(ctx context.Context, email, name, picture string) error {
	ctx, cancel := s.client.opCtx(ctx)
	defer cancel()

	res, err := s.collection().UpdateOne(ctx,
		bson.M{"email": identity.CanonicalEmail(email)},
		bson.M{"$set": bson.M{"name": name, "picture": picture}},
	)
	if err != nil {
		return fmt.Errorf("failed to update auth session profile: %w", err)
	}
	if res.MatchedCount == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

// DeleteByToken removes a session. Absent tokens are a no-op so logout is
// idempotent.
func (s *AuthStore) DeleteByToken(ctx context.Context, token string) error {
	ctx, cancel := s.client.opCtx(ctx)
	defer cancel()

	if _, err := s.collection().DeleteOne(ctx, bson.M{"token": token}); err != nil {
		return fmt.Errorf("failed to delete auth session: %w", err)
	}
	return nil
}
