package rulegen

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/sqlanalyze"
)

const sampleSQL = `SELECT count(DISTINCT l.id)
FROM leads l
LEFT JOIN accounts a ON l.account_id = a.id
WHERE l.created_at >= date_trunc('month', CURRENT_DATE)
  AND l.source NOT IN ('test', 'internal')`

func sampleInput() Input {
	return Input{
		SQL:            sampleSQL,
		PatternName:    "leads_mtd",
		Description:    "Month-to-date lead count",
		Category:       "leads",
		IntentKeywords: []string{"leads", "mtd"},
	}
}

func TestGenerateDeterministic(t *testing.T) {
	analysis := sqlanalyze.Analyze(sampleSQL)

	first, err := Generate(analysis, sampleInput())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := Generate(sqlanalyze.Analyze(sampleSQL), sampleInput())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if first.YAMLRules != second.YAMLRules {
		t.Error("YAMLRules differ between identical invocations")
	}
	if first.ToolDescriptor != second.ToolDescriptor {
		t.Error("ToolDescriptor differs between identical invocations")
	}
	if first.CodeSnippet != second.CodeSnippet {
		t.Error("CodeSnippet differs between identical invocations")
	}
}

func TestGenerateYAMLRules(t *testing.T) {
	analysis := sqlanalyze.Analyze(sampleSQL)
	out, err := Generate(analysis, sampleInput())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	y := out.YAMLRules
	for _, want := range []string{
		"name: leads_mtd",
		"category: leads",
		"structure: multi_join",
		"- leads",
		"- accounts",
		"pattern: mtd_current",
		"type: not_in",
		"sql: |",
	} {
		if !strings.Contains(y, want) {
			t.Errorf("YAMLRules missing %q:\n%s", want, y)
		}
	}

	// The SQL must appear verbatim inside the block literal.
	if !strings.Contains(y, "date_trunc('month', CURRENT_DATE)") {
		t.Errorf("YAMLRules does not embed the SQL verbatim:\n%s", y)
	}

	// Key order is fixed: name before structure before tables.
	if strings.Index(y, "name:") > strings.Index(y, "structure:") ||
		strings.Index(y, "structure:") > strings.Index(y, "tables:") {
		t.Errorf("YAMLRules key order unstable:\n%s", y)
	}
}

func TestToolDescriptorConditionalProperties(t *testing.T) {
	type schema struct {
		Name        string `json:"name"`
		InputSchema struct {
			Type       string                     `json:"type"`
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"inputSchema"`
	}

	parse := func(t *testing.T, sql string) schema {
		t.Helper()
		in := sampleInput()
		in.SQL = sql
		out, err := Generate(sqlanalyze.Analyze(sql), in)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		var s schema
		if err := json.Unmarshal([]byte(out.ToolDescriptor), &s); err != nil {
			t.Fatalf("descriptor is not valid JSON: %v", err)
		}
		return s
	}

	full := parse(t, sampleSQL)
	if full.Name != "leads_mtd" || full.InputSchema.Type != "object" {
		t.Errorf("descriptor header = %+v", full)
	}
	for _, key := range []string{"limit", "start_date", "end_date", "apply_exclusions"} {
		if _, ok := full.InputSchema.Properties[key]; !ok {
			t.Errorf("descriptor missing property %q", key)
		}
	}

	// Without date filters or exclusions only limit remains.
	bare := parse(t, "SELECT * FROM leads")
	if _, ok := bare.InputSchema.Properties["limit"]; !ok {
		t.Error("limit property must be unconditional")
	}
	for _, key := range []string{"start_date", "end_date", "apply_exclusions"} {
		if _, ok := bare.InputSchema.Properties[key]; ok {
			t.Errorf("property %q present without its analyzer dimension", key)
		}
	}
}

func TestCodeSnippetEmbedsSQLVerbatim(t *testing.T) {
	out, err := Generate(sqlanalyze.Analyze(sampleSQL), sampleInput())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if !strings.Contains(out.CodeSnippet, sampleSQL) {
		t.Errorf("snippet does not embed the SQL verbatim:\n%s", out.CodeSnippet)
	}
	if !strings.Contains(out.CodeSnippet, "leadsMtdSQL") {
		t.Errorf("snippet constant name not derived from pattern:\n%s", out.CodeSnippet)
	}
}

func TestGenerateRequiresPatternName(t *testing.T) {
	in := sampleInput()
	in.PatternName = ""
	if _, err := Generate(sqlanalyze.Analyze(sampleSQL), in); err == nil {
		t.Error("Generate accepted empty pattern name")
	}
}
