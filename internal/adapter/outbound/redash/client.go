// Package redash fetches stored query definitions from a Redash instance.
// Only the query text and metadata are read; results are never executed here.
package redash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/chetandr-lohono/lohono-db-connect/internal/config"
)

// Sentinel errors.
var (
	// ErrNotConfigured indicates no Redash credentials were supplied.
	ErrNotConfigured = errors.New("redash is not configured")

	// ErrQueryNotFound indicates the query id does not exist.
	ErrQueryNotFound = errors.New("redash query not found")
)

// Query is a stored Redash query definition.
type Query struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Query       string `json:"query"`
}

// Client talks to the Redash REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New builds a client from configuration. A client without credentials is
// still returned; every call on it fails with ErrNotConfigured so the tools
// that depend on Redash can surface a descriptive error instead of crashing
// at startup.
func New(cfg config.RedashConfig, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: config.MustDuration(cfg.Timeout),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// GetQuery fetches one stored query definition by id.
func (c *Client) GetQuery(ctx context.Context, id int) (*Query, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	url := fmt.Sprintf("%s/api/queries/%d", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build redash request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("redash request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: id %d", ErrQueryNotFound, id)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("redash rejected credentials: status %d", resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("redash returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var q Query
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return nil, fmt.Errorf("failed to decode redash response: %w", err)
	}
	return &q, nil
}

// ParseQueryIDs parses a user-supplied id list. Accepts commas, whitespace,
// or both as separators ("1,2 3"). The empty string yields an empty list.
// A non-numeric token fails the whole parse, naming the token.
func ParseQueryIDs(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})

	ids := make([]int, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid query id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
