// Package mongodb implements the conversation and auth-session stores on a
// MongoDB database. Index bootstrap is part of startup: the store contracts
// assume the unique and sort indexes exist before any operation runs.
package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/chetandr-lohono/lohono-db-connect/internal/config"
)

// Collection names.
const (
	sessionsCollection     = "sessions"
	messagesCollection     = "messages"
	authSessionsCollection = "auth_sessions"
)

// Client owns the MongoDB connection and hands out the typed stores.
type Client struct {
	client    *mongo.Client
	db        *mongo.Database
	opTimeout time.Duration
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Connect establishes the connection, verifies it against the primary, and
// ensures the collection indexes.
func Connect(ctx context.Context, cfg config.MongoConfig, opts ...Option) (*Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	mc, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := mc.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	c := &Client{
		client:    mc,
		db:        mc.Database(cfg.Database),
		opTimeout: config.MustDuration(cfg.OpTimeout),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.ensureIndexes(ctx); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, err
	}
	return c, nil
}

// Close disconnects from the server.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Ping reports store health for the liveness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.client.Ping(ctx, readpref.Primary())
}

// ChatStore returns the conversation store.
func (c *Client) ChatStore() *ChatStore {
	return &ChatStore{client: c}
}

// AuthStore returns the auth-session store.
func (c *Client) AuthStore() *AuthStore {
	return &AuthStore{client: c}
}

// opCtx bounds a single store operation.
func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

// ensureIndexes creates the indexes the store contracts rely on. CreateMany
// is idempotent for identical definitions, so this is safe on every start.
func (c *Client) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Sessions list by owner, newest activity first.
	_, err := c.db.Collection(sessionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "updatedAt", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create sessions indexes: %w", err)
	}

	// Transcript reads are always (sessionId, createdAt asc).
	_, err = c.db.Collection(messagesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "createdAt", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create messages indexes: %w", err)
	}

	// Token lookup on every authenticated request; one session per email.
	_, err = c.db.Collection(authSessionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create auth_sessions indexes: %w", err)
	}

	c.logger.InfoContext(ctx, "mongodb indexes ensured", "database", c.db.Name())
	return nil
}
