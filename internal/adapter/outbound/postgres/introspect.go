package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// TableInfo is one table in a schema listing.
type TableInfo struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

// ColumnInfo is one column in a table description.
type ColumnInfo struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"is_nullable"`
	Default    string `json:"default,omitempty"`
	Position   int    `json:"position"`
}

// ListSchemas returns user-visible schema names, excluding the catalog
// schemas the LLM has no business exploring.
func (p *Pool) ListSchemas(ctx context.Context) ([]string, error) {
	const query = `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
		  AND schema_name NOT LIKE 'pg_toast%'
		  AND schema_name NOT LIKE 'pg_temp%'
		ORDER BY schema_name`

	var schemas []string
	err := p.WithReadOnlyTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to list schemas: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("failed to scan schema name: %w", err)
			}
			schemas = append(schemas, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return schemas, nil
}

// ListTables returns tables and views in the given schema.
// An empty schema defaults to "public".
func (p *Pool) ListTables(ctx context.Context, schema string) ([]TableInfo, error) {
	if schema == "" {
		schema = "public"
	}

	const query = `
		SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
		ORDER BY table_name`

	var tables []TableInfo
	err := p.WithReadOnlyTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, schema)
		if err != nil {
			return fmt.Errorf("failed to list tables: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var t TableInfo
			if err := rows.Scan(&t.Schema, &t.Name, &t.Type); err != nil {
				return fmt.Errorf("failed to scan table row: %w", err)
			}
			tables = append(tables, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// DescribeTable returns the column layout of one table. The table name is a
// parameter value, never spliced into SQL. Unknown tables return an error
// naming the table.
func (p *Pool) DescribeTable(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	if schema == "" {
		schema = "public"
	}

	const query = `
		SELECT column_name, data_type, is_nullable, column_default, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	var columns []ColumnInfo
	err := p.WithReadOnlyTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, schema, table)
		if err != nil {
			return fmt.Errorf("failed to describe table: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				c        ColumnInfo
				nullable string
				def      sql.NullString
			)
			if err := rows.Scan(&c.Name, &c.DataType, &nullable, &def, &c.Position); err != nil {
				return fmt.Errorf("failed to scan column row: %w", err)
			}
			c.IsNullable = nullable == "YES"
			c.Default = def.String
			columns = append(columns, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %q not found in schema %q", table, schema)
	}
	return columns, nil
}
