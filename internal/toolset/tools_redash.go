package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/outbound/redash"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/rulegen"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/sqlanalyze"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/tool"
)

// fetchedQuery is the per-ID outcome of a redash fetch. Exactly one of the
// payload fields and Error is populated.
type fetchedQuery struct {
	QueryID int    `json:"query_id"`
	Name    string `json:"name,omitempty"`
	SQL     string `json:"sql,omitempty"`
	Error   string `json:"error,omitempty"`
}

func fetchRedashQueryTool(store QueryStore) tool.Registration {
	return tool.Registration{
		Descriptor: tool.Descriptor{
			Name:        "fetch_redash_query",
			Description: "Fetch stored query definitions from Redash by id. Accepts a comma or whitespace separated id list; each id succeeds or fails independently.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query_ids": {
						"type": "string",
						"description": "Query ids, e.g. \"42\" or \"42, 99 103\""
					}
				},
				"required": ["query_ids"]
			}`),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			fetched, err := fetchQueries(ctx, store, stringArg(args, "query_ids"))
			if err != nil {
				return "", err
			}
			return marshalJSON(fetched)
		},
	}
}

func generateRulesFromRedashTool(store QueryStore) tool.Registration {
	return tool.Registration{
		Descriptor: tool.Descriptor{
			Name:        "generate_rules_from_redash",
			Description: "Fetch stored Redash queries and generate query-pattern artifacts for each: YAML rules, tool descriptor, and code snippet. Pattern names derive from the Redash query names.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query_ids": {
						"type": "string",
						"description": "Query ids, e.g. \"42\" or \"42, 99 103\""
					},
					"category": {
						"type": "string",
						"description": "Category to assign to the generated patterns"
					},
					"intent_keywords": {
						"type": "array",
						"items": {"type": "string"},
						"description": "Keywords that should route questions to the generated patterns"
					}
				},
				"required": ["query_ids"]
			}`),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			fetched, err := fetchQueries(ctx, store, stringArg(args, "query_ids"))
			if err != nil {
				return "", err
			}

			type generated struct {
				QueryID     int             `json:"query_id"`
				PatternName string          `json:"pattern_name,omitempty"`
				Rules       *rulegen.Output `json:"rules,omitempty"`
				Error       string          `json:"error,omitempty"`
			}

			results := make([]generated, 0, len(fetched))
			for _, f := range fetched {
				if f.Error != "" {
					results = append(results, generated{QueryID: f.QueryID, Error: f.Error})
					continue
				}
				patternName := slugify(f.Name)
				out, err := rulegen.Generate(sqlanalyze.Analyze(f.SQL), rulegen.Input{
					SQL:            f.SQL,
					PatternName:    patternName,
					Description:    f.Name,
					Category:       stringArg(args, "category"),
					IntentKeywords: stringSliceArg(args, "intent_keywords"),
				})
				if err != nil {
					results = append(results, generated{QueryID: f.QueryID, Error: err.Error()})
					continue
				}
				results = append(results, generated{QueryID: f.QueryID, PatternName: patternName, Rules: out})
			}
			return marshalJSON(results)
		},
	}
}

// fetchQueries parses the id list and fetches each query sequentially.
// A bad id list fails the whole call; a failing fetch only fails its entry.
func fetchQueries(ctx context.Context, store QueryStore, idList string) ([]fetchedQuery, error) {
	if !store.Configured() {
		return nil, fmt.Errorf("redash is not configured: set redash.base_url and redash.api_key")
	}

	ids, err := redash.ParseQueryIDs(idList)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no query ids provided")
	}

	results := make([]fetchedQuery, 0, len(ids))
	for _, id := range ids {
		q, err := store.GetQuery(ctx, id)
		if err != nil {
			results = append(results, fetchedQuery{QueryID: id, Error: err.Error()})
			continue
		}
		results = append(results, fetchedQuery{QueryID: id, Name: q.Name, SQL: q.Query})
	}
	return results, nil
}

// slugify turns a Redash query name into a snake-case pattern name.
func slugify(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}
