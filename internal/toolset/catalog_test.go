package toolset

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/outbound/postgres"
	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/outbound/redash"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/acl"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/identity"
)

type fakeDB struct {
	lastSQL    string
	lastParams []any
	result     *postgres.QueryResult
	err        error
}

func (f *fakeDB) ExecuteReadOnly(ctx context.Context, query string, params []any) (*postgres.QueryResult, error) {
	f.lastSQL, f.lastParams = query, params
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeDB) ListSchemas(ctx context.Context) ([]string, error) {
	return []string{"public", "reporting"}, nil
}

func (f *fakeDB) ListTables(ctx context.Context, schema string) ([]postgres.TableInfo, error) {
	return []postgres.TableInfo{{Schema: schema, Name: "leads", Type: "BASE TABLE"}}, nil
}

func (f *fakeDB) DescribeTable(ctx context.Context, schema, table string) ([]postgres.ColumnInfo, error) {
	return []postgres.ColumnInfo{{Name: "id", DataType: "integer", Position: 1}}, nil
}

type fakeRedash struct {
	queries map[int]*redash.Query
}

func (f *fakeRedash) Configured() bool { return f.queries != nil }

func (f *fakeRedash) GetQuery(ctx context.Context, id int) (*redash.Query, error) {
	q, ok := f.queries[id]
	if !ok {
		return nil, errors.New("redash query not found")
	}
	return q, nil
}

type staffDirectory map[string]*identity.Staff

func (d staffDirectory) GetStaff(ctx context.Context, email string) (*identity.Staff, error) {
	if s, ok := d[email]; ok {
		return s, nil
	}
	return nil, acl.ErrStaffNotFound
}

func testCatalog(t *testing.T, db *fakeDB, rd *fakeRedash) *Catalog {
	t.Helper()
	engine := acl.NewEngine(
		&acl.Config{
			DefaultPolicy: acl.PolicyDeny,
			SuperuserACLs: []string{"ADMIN"},
			PublicTools:   []string{"list_query_patterns"},
			ToolACLs:      map[string][]string{"query": {"DB_VIEW"}},
		},
		staffDirectory{
			"a@x": {Email: "a@x", Active: true, ACLs: []string{"DB_VIEW"}},
			"b@x": {Email: "b@x", Active: true, ACLs: []string{"OTHER"}},
			"s@x": {Email: "s@x", Active: true, ACLs: []string{"ADMIN"}},
		},
	)
	if db == nil {
		db = &fakeDB{result: &postgres.QueryResult{RowCount: 0, Rows: []map[string]any{}}}
	}
	if rd == nil {
		rd = &fakeRedash{}
	}
	c, err := New(Deps{DB: db, Redash: rd, Engine: engine})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCatalogHasAllTools(t *testing.T) {
	c := testCatalog(t, nil, nil)

	want := []string{
		"query", "list_tables", "describe_table", "list_schemas",
		"get_sales_funnel_context", "classify_sales_intent",
		"get_query_template", "list_query_patterns",
		"analyze_query", "generate_rules",
		"fetch_redash_query", "generate_rules_from_redash",
	}
	descs := c.Descriptors()
	if len(descs) != len(want) {
		t.Fatalf("catalog has %d tools, want %d", len(descs), len(want))
	}
	for i, name := range want {
		if descs[i].Name != name {
			t.Errorf("tool %d = %q, want %q", i, descs[i].Name, name)
		}
		if descs[i].Description == "" || len(descs[i].InputSchema) == 0 {
			t.Errorf("tool %q missing description or schema", name)
		}
	}
}

func TestInvokeQuery(t *testing.T) {
	db := &fakeDB{result: &postgres.QueryResult{
		RowCount: 1,
		Rows:     []map[string]any{{"count": 42}},
	}}
	c := testCatalog(t, db, nil)

	res, err := c.Invoke(context.Background(), "query",
		map[string]any{"sql": "SELECT count(*) FROM leads WHERE source = $1", "params": []any{"web"}}, "a@x")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.JoinedText())
	}
	if db.lastSQL != "SELECT count(*) FROM leads WHERE source = $1" {
		t.Errorf("handler got sql %q", db.lastSQL)
	}
	if len(db.lastParams) != 1 || db.lastParams[0] != "web" {
		t.Errorf("handler got params %v", db.lastParams)
	}

	var payload struct {
		RowCount int              `json:"rowCount"`
		Rows     []map[string]any `json:"rows"`
	}
	if err := json.Unmarshal([]byte(res.JoinedText()), &payload); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if payload.RowCount != 1 {
		t.Errorf("rowCount = %d", payload.RowCount)
	}
}

func TestInvokeDeniedForMissingACL(t *testing.T) {
	c := testCatalog(t, nil, nil)

	res, err := c.Invoke(context.Background(), "query", map[string]any{"sql": "SELECT 1"}, "b@x")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result")
	}
	text := res.JoinedText()
	if !strings.Contains(text, "DB_VIEW") || !strings.Contains(text, "OTHER") {
		t.Errorf("denial %q does not enumerate required vs held ACLs", text)
	}
}

func TestInvokeDeniedForUnknownUser(t *testing.T) {
	c := testCatalog(t, nil, nil)

	res, err := c.Invoke(context.Background(), "query", map[string]any{"sql": "SELECT 1"}, "c@x")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.IsError || !strings.Contains(res.JoinedText(), "User not found") {
		t.Errorf("result = %q, want user-not-found denial", res.JoinedText())
	}
}

func TestInvokeValidationFailure(t *testing.T) {
	c := testCatalog(t, nil, nil)

	// query requires sql.
	res, err := c.Invoke(context.Background(), "query", map[string]any{}, "a@x")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.IsError || !strings.Contains(res.JoinedText(), "Invalid arguments") {
		t.Errorf("result = %q, want a validation error result", res.JoinedText())
	}
}

func TestInvokeHandlerErrorBecomesResult(t *testing.T) {
	db := &fakeDB{err: errors.New("pq: cannot execute DELETE in a read-only transaction")}
	c := testCatalog(t, db, nil)

	res, err := c.Invoke(context.Background(), "query", map[string]any{"sql": "DELETE FROM leads"}, "a@x")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.IsError || !strings.Contains(res.JoinedText(), "read-only") {
		t.Errorf("result = %q, want the backend error in-band", res.JoinedText())
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	c := testCatalog(t, nil, nil)

	if _, err := c.Invoke(context.Background(), "no_such_tool", nil, "s@x"); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("err = %v, want ErrUnknownTool", err)
	}
}

func TestVisibleDescriptors(t *testing.T) {
	c := testCatalog(t, nil, nil)

	all := len(c.Descriptors())

	// Superusers see everything.
	if got := len(c.VisibleDescriptors(context.Background(), "s@x")); got != all {
		t.Errorf("superuser sees %d tools, want %d", got, all)
	}

	// a@x holds DB_VIEW: query plus the public tool.
	visible := c.VisibleDescriptors(context.Background(), "a@x")
	names := map[string]bool{}
	for _, d := range visible {
		names[d.Name] = true
	}
	if !names["query"] || !names["list_query_patterns"] {
		t.Errorf("a@x sees %v, want query and list_query_patterns", names)
	}

	// Unknown callers see only public tools.
	visible = c.VisibleDescriptors(context.Background(), "nobody@x")
	if len(visible) != 1 || visible[0].Name != "list_query_patterns" {
		t.Errorf("unknown caller sees %+v, want only the public tool", visible)
	}
}

func TestListingMatchesInvocation(t *testing.T) {
	c := testCatalog(t, nil, nil)
	ctx := context.Background()

	for _, email := range []string{"a@x", "b@x", "s@x", "nobody@x", ""} {
		visible := map[string]bool{}
		for _, d := range c.VisibleDescriptors(ctx, email) {
			visible[d.Name] = true
		}
		for _, d := range c.Descriptors() {
			res, err := c.Invoke(ctx, d.Name, minimalArgs(d.Name), email)
			if err != nil {
				t.Fatalf("Invoke(%s): %v", d.Name, err)
			}
			denied := res.IsError && looksLikeDenial(res.JoinedText())
			if visible[d.Name] && denied {
				t.Errorf("email %q: %s visible but denied: %s", email, d.Name, res.JoinedText())
			}
			if !visible[d.Name] && !denied {
				t.Errorf("email %q: %s hidden but not denied", email, d.Name)
			}
		}
	}
}

func TestInvokeRedashComposition(t *testing.T) {
	rd := &fakeRedash{queries: map[int]*redash.Query{
		42: {ID: 42, Name: "Leads MTD", Query: "SELECT * FROM leads"},
	}}
	c := testCatalog(t, nil, rd)

	res, err := c.Invoke(context.Background(), "generate_rules_from_redash",
		map[string]any{"query_ids": "42, 99"}, "s@x")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.JoinedText())
	}

	var results []struct {
		QueryID     int    `json:"query_id"`
		PatternName string `json:"pattern_name"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal([]byte(res.JoinedText()), &results); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d entries, want 2", len(results))
	}
	if results[0].PatternName != "leads_mtd" || results[0].Error != "" {
		t.Errorf("entry 42 = %+v", results[0])
	}
	if results[1].QueryID != 99 || results[1].Error == "" {
		t.Errorf("entry 99 = %+v, want a structured error", results[1])
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Leads MTD", "leads_mtd"},
		{"Sales (YoY) - 2024", "sales_yoy_2024"},
		{"already_snake", "already_snake"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// minimalArgs returns schema-valid arguments for each tool so gate tests can
// reach the access check without tripping validation.
func minimalArgs(name string) map[string]any {
	switch name {
	case "query", "analyze_query":
		return map[string]any{"sql": "SELECT 1"}
	case "describe_table":
		return map[string]any{"table_name": "leads"}
	case "classify_sales_intent":
		return map[string]any{"question": "leads mtd"}
	case "get_query_template":
		return map[string]any{"pattern_name": "leads_mtd"}
	case "generate_rules":
		return map[string]any{"sql": "SELECT 1", "pattern_name": "p"}
	case "fetch_redash_query", "generate_rules_from_redash":
		return map[string]any{"query_ids": "1"}
	default:
		return map[string]any{}
	}
}

func looksLikeDenial(text string) bool {
	return strings.Contains(text, "Access denied") ||
		strings.Contains(text, "User not found") ||
		strings.Contains(text, "Authentication required") ||
		strings.Contains(text, "inactive")
}
