// Package rulegen turns a SQL analysis into three serialized artifacts: a
// YAML rules fragment, a tool descriptor, and a code snippet embedding the
// SQL verbatim. Output is deterministic: same analysis and metadata, same
// bytes, stable key order.
package rulegen

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/sqlanalyze"
)

// Input is the caller-provided metadata for rule generation.
type Input struct {
	SQL            string
	PatternName    string
	Description    string
	Category       string
	IntentKeywords []string
}

// Output bundles the three generated artifacts.
type Output struct {
	YAMLRules      string `json:"yaml_rules"`
	ToolDescriptor string `json:"tool_descriptor"`
	CodeSnippet    string `json:"code_snippet"`
}

// Generate produces the rule artifacts for one analyzed query.
func Generate(analysis *sqlanalyze.Analysis, in Input) (*Output, error) {
	if in.PatternName == "" {
		return nil, fmt.Errorf("pattern name is required")
	}

	yamlRules, err := buildYAMLRules(analysis, in)
	if err != nil {
		return nil, fmt.Errorf("failed to build YAML rules: %w", err)
	}

	descriptor, err := buildToolDescriptor(analysis, in)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool descriptor: %w", err)
	}

	return &Output{
		YAMLRules:      yamlRules,
		ToolDescriptor: descriptor,
		CodeSnippet:    buildCodeSnippet(in),
	}, nil
}

// buildYAMLRules emits the rules document. yaml.Node trees keep the key
// order fixed regardless of map iteration.
func buildYAMLRules(a *sqlanalyze.Analysis, in Input) (string, error) {
	pattern := mapping()
	addScalar(pattern, "name", in.PatternName)
	addScalar(pattern, "description", in.Description)
	addScalar(pattern, "category", in.Category)
	if len(in.IntentKeywords) > 0 {
		addStringSeq(pattern, "intent_keywords", in.IntentKeywords)
	}
	addScalar(pattern, "structure", a.Structure)

	tables := make([]string, 0, len(a.Tables))
	for _, t := range a.Tables {
		tables = append(tables, t.Name)
	}
	addStringSeq(pattern, "tables", dedupe(tables))

	if len(a.CTEs) > 0 {
		names := make([]string, 0, len(a.CTEs))
		for _, c := range a.CTEs {
			names = append(names, c.Name)
		}
		addStringSeq(pattern, "ctes", names)
	}

	if len(a.Joins) > 0 {
		seq := sequence()
		for _, j := range a.Joins {
			m := mapping()
			addScalar(m, "type", j.Type)
			addScalar(m, "table", j.Table)
			if j.Alias != "" {
				addScalar(m, "alias", j.Alias)
			}
			addStringSeq(m, "conditions", j.Conditions)
			seq.Content = append(seq.Content, m)
		}
		addNode(pattern, "joins", seq)
	}

	if len(a.DateFilters) > 0 {
		seq := sequence()
		for _, f := range a.DateFilters {
			m := mapping()
			addScalar(m, "pattern", f.Pattern)
			if f.Column != "" {
				addScalar(m, "column", f.Column)
			}
			if f.Months > 0 {
				addScalar(m, "months", fmt.Sprintf("%d", f.Months))
			}
			addScalar(m, "has_timezone", fmt.Sprintf("%t", f.HasTimezone))
			seq.Content = append(seq.Content, m)
		}
		addNode(pattern, "date_filters", seq)
	}

	if len(a.Exclusions) > 0 {
		seq := sequence()
		for _, e := range a.Exclusions {
			m := mapping()
			addScalar(m, "type", e.Type)
			addScalar(m, "column", e.Column)
			addStringSeq(m, "values", e.Values)
			seq.Content = append(seq.Content, m)
		}
		addNode(pattern, "exclusions", seq)
	}

	if len(a.Aggregations) > 0 {
		seq := sequence()
		for _, agg := range a.Aggregations {
			m := mapping()
			addScalar(m, "function", agg.Function)
			addScalar(m, "expression", agg.Expression)
			addScalar(m, "distinct", fmt.Sprintf("%t", agg.Distinct))
			seq.Content = append(seq.Content, m)
		}
		addNode(pattern, "aggregations", seq)
	}

	if len(a.StatusConditions) > 0 {
		addStringSeq(pattern, "status_conditions", a.StatusConditions)
	}

	root := mapping()
	addNode(root, "pattern", pattern)

	sqlNode := &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.LiteralStyle,
		Value: in.SQL,
	}
	addNode(root, "sql", sqlNode)

	var buf strings.Builder
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// descriptorSchema is the generated tool's input schema. Struct fields keep
// JSON key order deterministic.
type descriptorSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]map[string]any `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

type descriptor struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	InputSchema descriptorSchema `json:"inputSchema"`
}

// buildToolDescriptor emits a descriptor whose properties depend on which
// analyzer dimensions were present: date params iff date filters, an
// exclusions flag iff exclusions, and always a limit.
func buildToolDescriptor(a *sqlanalyze.Analysis, in Input) (string, error) {
	props := map[string]map[string]any{
		"limit": {
			"type":        "integer",
			"description": "Maximum number of rows to return",
		},
	}
	if len(a.DateFilters) > 0 {
		props["start_date"] = map[string]any{
			"type":        "string",
			"description": "Start date (YYYY-MM-DD) overriding the default date filter",
		}
		props["end_date"] = map[string]any{
			"type":        "string",
			"description": "End date (YYYY-MM-DD) overriding the default date filter",
		}
	}
	if len(a.Exclusions) > 0 {
		props["apply_exclusions"] = map[string]any{
			"type":        "boolean",
			"description": "Apply the pattern's standard exclusion filters",
		}
	}

	d := descriptor{
		Name:        in.PatternName,
		Description: in.Description,
		InputSchema: descriptorSchema{Type: "object", Properties: props},
	}

	// encoding/json sorts map keys, so the document is deterministic.
	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// buildCodeSnippet embeds the SQL verbatim in a raw string literal, shaped
// like a catalog registration constant.
func buildCodeSnippet(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// %s: %s\n", in.PatternName, in.Description)
	fmt.Fprintf(&b, "const %sSQL = `\n", toCamel(in.PatternName))
	b.WriteString(in.SQL)
	if !strings.HasSuffix(in.SQL, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("`\n")
	return b.String()
}

// toCamel converts snake_case pattern names to lowerCamelCase identifiers.
func toCamel(name string) string {
	parts := strings.Split(name, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

func dedupe(values []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// yaml.Node construction helpers.

func mapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode}
}

func sequence() *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode}
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
}

func addNode(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, scalar(key), value)
}

func addScalar(m *yaml.Node, key, value string) {
	addNode(m, key, scalar(value))
}

func addStringSeq(m *yaml.Node, key string, values []string) {
	seq := sequence()
	for _, v := range values {
		seq.Content = append(seq.Content, scalar(v))
	}
	addNode(m, key, seq)
}
