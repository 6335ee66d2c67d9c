package chat

import (
	"context"
	"time"
)

// Session is a conversation owned by one user: an ordered, append-only
// transcript plus a display title.
type Session struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"userId" json:"userId"`
	Title     string    `bson:"title" json:"title"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// TitleMaxLen bounds synthesized titles (a prefix of the first user message).
const TitleMaxLen = 50

// SynthesizeTitle derives a session title from the first user message.
func SynthesizeTitle(userText string) string {
	runes := []rune(userText)
	if len(runes) <= TitleMaxLen {
		return userText
	}
	return string(runes[:TitleMaxLen])
}

// Store persists conversation sessions and their messages.
// Implemented by the mongodb adapter.
type Store interface {
	// CreateSession inserts a new session.
	CreateSession(ctx context.Context, session *Session) error

	// GetSession returns a session by id.
	// Returns ErrSessionNotFound if absent.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// ListSessions returns the user's sessions ordered by updatedAt desc.
	ListSessions(ctx context.Context, userID string) ([]*Session, error)

	// DeleteSession removes a session and all of its messages.
	DeleteSession(ctx context.Context, sessionID string) error

	// UpdateTitle sets the session title and touches updatedAt.
	UpdateTitle(ctx context.Context, sessionID, title string) error

	// AppendMessage inserts a message and touches the parent session's
	// updatedAt in the same logical step. Messages are append-only.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessages returns the session transcript ordered by createdAt asc,
	// ties broken by insertion order.
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)
}
