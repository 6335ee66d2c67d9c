package acl

import (
	"strings"
	"testing"
)

func TestParseConfig(t *testing.T) {
	data := []byte(`
default_policy: deny
superuser_acls: [ADMIN]
public_tools: [list_schemas]
tool_acls:
  query: [DB_VIEW, DB_ADMIN]
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.DefaultPolicy != PolicyDeny {
		t.Errorf("DefaultPolicy = %q", cfg.DefaultPolicy)
	}
	if !cfg.IsPublic("list_schemas") || cfg.IsPublic("query") {
		t.Error("IsPublic misclassified tools")
	}
	required, listed := cfg.RequiredACLs("query")
	if !listed || len(required) != 2 {
		t.Errorf("RequiredACLs(query) = %v, %v", required, listed)
	}
	if _, listed := cfg.RequiredACLs("analyze_query"); listed {
		t.Error("unlisted tool reported as listed")
	}
}

func TestParseConfigDefaultPolicy(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"empty defaults to deny", "superuser_acls: []", false},
		{"open accepted", "default_policy: open", false},
		{"deny accepted", "default_policy: deny", false},
		{"mixed case rejected", "default_policy: Deny", true},
		{"unknown rejected", "default_policy: allow", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tt.yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseConfig accepted %q", tt.yaml)
				}
				if !strings.Contains(err.Error(), "default_policy") {
					t.Errorf("error %q does not name default_policy", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConfig: %v", err)
			}
			if cfg.DefaultPolicy != PolicyOpen && cfg.DefaultPolicy != PolicyDeny {
				t.Errorf("DefaultPolicy = %q", cfg.DefaultPolicy)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := &Config{
		DefaultPolicy: PolicyDeny,
		SuperuserACLs: []string{"ADMIN", "ROOT"},
		ToolACLs:      map[string][]string{"query": {"DB_VIEW"}},
	}
	// Same rules, different slice order.
	b := &Config{
		DefaultPolicy: PolicyDeny,
		SuperuserACLs: []string{"ROOT", "ADMIN"},
		ToolACLs:      map[string][]string{"query": {"DB_VIEW"}},
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint depends on declaration order")
	}

	c := &Config{
		DefaultPolicy: PolicyOpen,
		SuperuserACLs: []string{"ADMIN", "ROOT"},
		ToolACLs:      map[string][]string{"query": {"DB_VIEW"}},
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("fingerprint ignores default_policy change")
	}

	if len(a.Fingerprint()) != 16 {
		t.Errorf("fingerprint %q not 16 hex chars", a.Fingerprint())
	}
}
