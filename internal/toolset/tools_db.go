package toolset

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/tool"
)

func queryTool(db Relational) tool.Registration {
	return tool.Registration{
		Descriptor: tool.Descriptor{
			Name:        "query",
			Description: "Run a read-only SQL query against the reporting database. The query executes inside a read-only transaction; INSERT, UPDATE, DELETE and DDL always fail. Use positional parameters ($1, $2, ...) with the params array instead of splicing values into the SQL.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"sql": {
						"type": "string",
						"description": "The SQL statement to execute"
					},
					"params": {
						"type": "array",
						"description": "Positional parameter values for $1, $2, ...",
						"items": {}
					}
				},
				"required": ["sql"]
			}`),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			sqlText := stringArg(args, "sql")
			var params []any
			if raw, ok := args["params"].([]any); ok {
				params = raw
			}

			result, err := db.ExecuteReadOnly(ctx, sqlText, params)
			if err != nil {
				return "", fmt.Errorf("query failed: %w", err)
			}
			return marshalJSON(struct {
				RowCount int              `json:"rowCount"`
				Rows     []map[string]any `json:"rows"`
			}{result.RowCount, result.Rows})
		},
	}
}

func listTablesTool(db Relational) tool.Registration {
	return tool.Registration{
		Descriptor: tool.Descriptor{
			Name:        "list_tables",
			Description: "List tables and views in a schema (default: public).",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"schema": {
						"type": "string",
						"description": "Schema name, defaults to public"
					}
				}
			}`),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			tables, err := db.ListTables(ctx, stringArg(args, "schema"))
			if err != nil {
				return "", err
			}
			return marshalJSON(tables)
		},
	}
}

func describeTableTool(db Relational) tool.Registration {
	return tool.Registration{
		Descriptor: tool.Descriptor{
			Name:        "describe_table",
			Description: "Describe the columns of a table: name, type, nullability, default.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"table_name": {
						"type": "string",
						"description": "Table to describe"
					},
					"schema": {
						"type": "string",
						"description": "Schema name, defaults to public"
					}
				},
				"required": ["table_name"]
			}`),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			columns, err := db.DescribeTable(ctx, stringArg(args, "schema"), stringArg(args, "table_name"))
			if err != nil {
				return "", err
			}
			return marshalJSON(columns)
		},
	}
}

func listSchemasTool(db Relational) tool.Registration {
	return tool.Registration{
		Descriptor: tool.Descriptor{
			Name:        "list_schemas",
			Description: "List user-visible schemas in the reporting database.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			schemas, err := db.ListSchemas(ctx)
			if err != nil {
				return "", err
			}
			return marshalJSON(schemas)
		},
	}
}
