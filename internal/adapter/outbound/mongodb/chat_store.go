package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/chat"
)

// ChatStore persists conversation sessions and messages.
type ChatStore struct {
	client *Client
}

var _ chat.Store = (*ChatStore)(nil)

func (s *ChatStore) sessions() *mongo.Collection {
	return s.client.db.Collection(sessionsCollection)
}

func (s *ChatStore) messages() *mongo.Collection {
	return s.client.db.Collection(messagesCollection)
}

// CreateSession inserts a new session document.
func (s *ChatStore) CreateSession(ctx context.Context, session *chat.Session) error {
	ctx, cancel := s.client.opCtx(ctx)
	defer cancel()

	if _, err := s.sessions().InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession returns a session by id.
func (s *ChatStore) GetSession(ctx context.Context, sessionID string) (*chat.Session, error) {
	ctx, cancel := s.client.opCtx(ctx)
	defer cancel()

	var session chat.Session
	err := s.sessions().FindOne(ctx, bson.M{"_id": sessionID}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, chat.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (s *ChatStore) ListSessions(ctx context.Context, userID string) ([]*chat.Session, error) {
	ctx, cancel := s.client.opCtx(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := s.sessions().Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := []*chat.Session{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and its entire transcript.
func (s *ChatStore) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, cancel := s.client.opCtx(ctx)
	defer cancel()

	res, err := s.sessions().DeleteOne(ctx, bson.M{"_id": sessionID})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if res.DeletedCount == 0 {
		return chat.ErrSessionNotFound
	}

	if _, err := s.messages().DeleteMany(ctx, bson.M{"sessionId": sessionID}); err != nil {
		return fmt.Errorf("failed to delete session messages: %w", err)
	}
	return nil
}

// UpdateTitle sets the session title and touches updatedAt.
func (s *ChatStore) UpdateTitle(ctx context.Context, sessionID, title string) error {
	ctx, cancel := s.client.opCtx(ctx)
	defer cancel()

	res, err := s.sessions().UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$set": bson.M{"title": title, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update session title: %w", err)
	}
	if res.MatchedCount == 0 {
		return chat.ErrSessionNotFound
	}
	return nil
}

// AppendMessage inserts a message and touches the parent session's updatedAt
// so the owner's session list resorts by activity.
func (s *ChatStore) AppendMessage(ctx context.Context, msg *chat.Message) error {
	ctx, cancel := s.client.opCtx(ctx)
	defer cancel()

	if msg.ID == "" {
		msg.ID = primitive.NewObjectID().Hex()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	res, err := s.sessions().UpdateOne(ctx,
		bson.M{"_id": msg.SessionID},
		bson.M{"$set": bson.M{"updatedAt": msg.CreatedAt}},
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if res.MatchedCount == 0 {
		return chat.ErrSessionNotFound
	}

	if _, err := s.messages().InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListMessages returns the transcript ordered by createdAt, insertion order
// breaking ties. ObjectID hex sorts by insertion time, which gives the tie
// break for messages persisted within the same millisecond.
func (s *ChatStore) ListMessages(ctx context.Context, sessionID string) ([]*chat.Message, error) {
	ctx, cancel := s.client.opCtx(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.messages().Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	msgs := []*chat.Message{}
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return msgs, nil
}
