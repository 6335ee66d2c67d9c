package toolset

import (
	"context"
	"encoding/json"

	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/rulegen"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/sqlanalyze"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/tool"
)

func analyzeQueryTool() tool.Registration {
	return tool.Registration{
		Descriptor: tool.Descriptor{
			Name:        "analyze_query",
			Description: "Analyze a SQL query's structure: tables, joins, CTEs, aggregations, date filters, timezone conversions, exclusions, CASE blocks, window functions, parameters, and an overall structural tag.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"sql": {
						"type": "string",
						"description": "The SQL to analyze"
					}
				},
				"required": ["sql"]
			}`),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return marshalJSON(sqlanalyze.Analyze(stringArg(args, "sql")))
		},
	}
}

func generateRulesTool() tool.Registration {
	return tool.Registration{
		Descriptor: tool.Descriptor{
			Name:        "generate_rules",
			Description: "Generate query-pattern artifacts from a SQL statement: a YAML rules fragment, a tool descriptor, and a code snippet embedding the SQL verbatim. Output is deterministic for a given input.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"sql": {
						"type": "string",
						"description": "The SQL to derive rules from"
					},
					"pattern_name": {
						"type": "string",
						"description": "Snake-case name for the new pattern"
					},
					"description": {
						"type": "string",
						"description": "Human description of the pattern"
					},
					"category": {
						"type": "string",
						"description": "Pattern category (leads, sales, funnel, ...)"
					},
					"intent_keywords": {
						"type": "array",
						"items": {"type": "string"},
						"description": "Keywords that should route questions to this pattern"
					}
				},
				"required": ["sql", "pattern_name"]
			}`),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			sqlText := stringArg(args, "sql")
			out, err := rulegen.Generate(sqlanalyze.Analyze(sqlText), rulegen.Input{
				SQL:            sqlText,
				PatternName:    stringArg(args, "pattern_name"),
				Description:    stringArg(args, "description"),
				Category:       stringArg(args, "category"),
				IntentKeywords: stringSliceArg(args, "intent_keywords"),
			})
			if err != nil {
				return "", err
			}
			return marshalJSON(out)
		},
	}
}

// stringSliceArg extracts an optional array-of-strings argument.
func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
