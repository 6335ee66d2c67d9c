// Package postgres provides the read-only relational pool and the staff
// directory lookup. Every statement issued through this package runs inside
// a transaction declared read-only at the engine level; a mutating statement
// fails there regardless of what the SQL text claims to be.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/chetandr-lohono/lohono-db-connect/internal/config"
	"github.com/chetandr-lohono/lohono-db-connect/internal/observability"
)

// ErrPoolExhausted is returned when connection acquisition times out.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// QueryResult is the shape returned to tool callers: row count plus rows as
// column-keyed maps, JSON-ready.
type QueryResult struct {
	RowCount int              `json:"rowCount"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
}

// Pool wraps the bounded connection pool with the read-only discipline.
type Pool struct {
	db           *sql.DB
	queryTimeout time.Duration
	logger       *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// New opens the pool and verifies connectivity.
func New(ctx context.Context, cfg config.DatabaseConfig, opts ...Option) (*Pool, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(config.MustDuration(cfg.ConnMaxLifetime))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Pool{
		db:           db,
		queryTimeout: config.MustDuration(cfg.QueryTimeout),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Close drains and closes the pool.
func (p *Pool) Close() error {
	return p.db.Close()
}

// Ping reports pool health for the liveness endpoint.
func (p *Pool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// ExecuteReadOnly runs one parameterized query inside a read-only
// transaction and materializes the rows. This is the only SQL path the tool
// layer may use; caller-supplied values travel exclusively through params.
func (p *Pool) ExecuteReadOnly(ctx context.Context, query string, params []any) (*QueryResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "db.query")
	defer span.End()

	var result *QueryResult
	err := p.WithReadOnlyTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, params...)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		defer rows.Close()

		result, err = collectRows(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WithReadOnlyTx acquires a connection, opens a read-only transaction, runs
// fn, and commits. Any error rolls back and releases the connection.
func (p *Pool) WithReadOnlyTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrPoolExhausted, err)
		}
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			p.logger.ErrorContext(ctx, "rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit read-only transaction: %w", err)
	}
	return nil
}

// collectRows materializes a result set into column-keyed maps.
// Byte slices become strings so the result serializes as JSON text rather
// than base64.
func collectRows(rows *sql.Rows) (*QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := &QueryResult{Columns: columns, Rows: []map[string]any{}}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			default:
				row[col] = v
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}
