package toolset

import (
	"context"
	"encoding/json"

	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/funnel"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/tool"
)

func salesFunnelContextTool() tool.Registration {
	return tool.Registration{
		Descriptor: tool.Descriptor{
			Name:        "get_sales_funnel_context",
			Description: "Get the sales funnel intelligence document: core query rules, date filter templates, funnel stages, metric definitions, source mapping, status logic, anti-patterns, validation checklist, and the tables involved. Read this before writing any sales funnel SQL.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return marshalJSON(funnel.SalesIntelligence)
		},
	}
}

func classifySalesIntentTool() tool.Registration {
	return tool.Registration{
		Descriptor: tool.Descriptor{
			Name:        "classify_sales_intent",
			Description: "Classify a natural-language sales question: which keyword groups it matches, which query patterns apply, and which date filter to use. Falls back to the default pattern when nothing matches.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"question": {
						"type": "string",
						"description": "The user's question, verbatim"
					}
				},
				"required": ["question"]
			}`),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return marshalJSON(funnel.ClassifyIntent(stringArg(args, "question")))
		},
	}
}

func queryTemplateTool() tool.Registration {
	return tool.Registration{
		Descriptor: tool.Descriptor{
			Name:        "get_query_template",
			Description: "Get the full rule package for a named query pattern: template SQL, core rules, date filter, stages, metrics, source mapping, status logic, validation checklist and anti-patterns.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"pattern_name": {
						"type": "string",
						"description": "Pattern name from list_query_patterns"
					}
				},
				"required": ["pattern_name"]
			}`),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			pkg, err := funnel.GetTemplate(stringArg(args, "pattern_name"))
			if err != nil {
				return "", err
			}
			return marshalJSON(pkg)
		},
	}
}

func listQueryPatternsTool() tool.Registration {
	return tool.Registration{
		Descriptor: tool.Descriptor{
			Name:        "list_query_patterns",
			Description: "List the available sales funnel query patterns with descriptions and keywords.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return marshalJSON(funnel.ListPatterns())
		},
	}
}
