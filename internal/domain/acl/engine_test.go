package acl

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/identity"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/tool"
)

// mockStaffStore is an in-memory StaffStore recording lookup counts.
type mockStaffStore struct {
	staff   map[string]*identity.Staff
	err     error
	lookups int
}

func (m *mockStaffStore) GetStaff(_ context.Context, email string) (*identity.Staff, error) {
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.staff[email]
	if !ok {
		return nil, ErrStaffNotFound
	}
	return s, nil
}

func testConfig() *Config {
	return &Config{
		DefaultPolicy: PolicyDeny,
		SuperuserACLs: []string{"ADMIN"},
		PublicTools:   []string{"list_schemas"},
		ToolACLs: map[string][]string{
			"query": {"DB_VIEW"},
		},
	}
}

func testStore() *mockStaffStore {
	return &mockStaffStore{staff: map[string]*identity.Staff{
		"a@x": {Email: "a@x", Active: true, ACLs: []string{"DB_VIEW"}},
		"b@x": {Email: "b@x", Active: true, ACLs: []string{"OTHER"}},
		"d@x": {Email: "d@x", Active: false, ACLs: []string{"DB_VIEW"}},
		"s@x": {Email: "s@x", Active: true, ACLs: []string{"ADMIN"}},
	}}
}

func TestCheckToolAccess(t *testing.T) {
	engine := NewEngine(testConfig(), testStore())
	ctx := context.Background()

	tests := []struct {
		name       string
		tool       string
		email      string
		allowed    bool
		wantReason string
	}{
		{"holder of required acl", "query", "a@x", true, "acl granted"},
		{"wrong acl denied naming required", "query", "b@x", false, "[DB_VIEW]"},
		{"unknown user", "query", "c@x", false, "User not found"},
		{"inactive user", "query", "d@x", false, "User is inactive"},
		{"superuser bypasses tool acls", "query", "s@x", true, "superuser access"},
		{"public tool without email", "list_schemas", "", true, "public tool"},
		{"non-public tool without email", "query", "", false, "Authentication required"},
		{"unlisted tool default deny", "analyze_query", "a@x", false, "default policy is deny"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := engine.CheckToolAccess(ctx, tt.tool, tt.email)
			if d.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v (reason: %s)", d.Allowed, tt.allowed, d.Reason)
			}
			if !strings.Contains(d.Reason, tt.wantReason) {
				t.Errorf("Reason = %q, want it to contain %q", d.Reason, tt.wantReason)
			}
		})
	}
}

func TestCheckToolAccessDefaultOpen(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultPolicy = PolicyOpen
	engine := NewEngine(cfg, testStore())

	d := engine.CheckToolAccess(context.Background(), "analyze_query", "b@x")
	if !d.Allowed {
		t.Errorf("unlisted tool under open policy: Allowed = false, reason %q", d.Reason)
	}

	// Listed tools still require their tags even under open default.
	d = engine.CheckToolAccess(context.Background(), "query", "b@x")
	if d.Allowed {
		t.Error("listed tool granted despite missing acl under open policy")
	}
}

func TestFilterToolsMatchesCheckToolAccess(t *testing.T) {
	engine := NewEngine(testConfig(), testStore())
	ctx := context.Background()

	catalog := []tool.Descriptor{
		{Name: "query"},
		{Name: "list_schemas"},
		{Name: "analyze_query"},
	}

	for _, email := range []string{"a@x", "b@x", "c@x", "d@x", "s@x", ""} {
		visible := engine.FilterTools(ctx, catalog, email)
		visibleSet := make(map[string]bool, len(visible))
		for _, d := range visible {
			visibleSet[d.Name] = true
		}
		for _, d := range catalog {
			allowed := engine.CheckToolAccess(ctx, d.Name, email).Allowed
			if visibleSet[d.Name] != allowed {
				t.Errorf("email %q tool %q: visible=%v but allowed=%v",
					email, d.Name, visibleSet[d.Name], allowed)
			}
		}
	}
}

func TestFilterToolsVisibleSets(t *testing.T) {
	engine := NewEngine(testConfig(), testStore())
	ctx := context.Background()

	catalog := []tool.Descriptor{{Name: "query"}}

	for _, tt := range []struct {
		email string
		want  int
	}{
		{"a@x", 1},
		{"b@x", 0},
		{"c@x", 0},
	} {
		if got := len(engine.FilterTools(ctx, catalog, tt.email)); got != tt.want {
			t.Errorf("FilterTools(%q) visible = %d, want %d", tt.email, got, tt.want)
		}
	}
}

func TestResolveACLsCaching(t *testing.T) {
	store := testStore()
	now := time.Now()
	engine := NewEngine(testConfig(), store,
		WithCacheTTL(5*time.Minute),
		withClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := engine.ResolveACLs(ctx, "a@x"); err != nil {
			t.Fatalf("ResolveACLs: %v", err)
		}
	}
	if store.lookups != 1 {
		t.Errorf("lookups = %d, want 1 (cache should absorb repeats)", store.lookups)
	}

	// Past the TTL the store is consulted again.
	now = now.Add(6 * time.Minute)
	if _, err := engine.ResolveACLs(ctx, "a@x"); err != nil {
		t.Fatalf("ResolveACLs after expiry: %v", err)
	}
	if store.lookups != 2 {
		t.Errorf("lookups = %d, want 2 after TTL expiry", store.lookups)
	}
}

func TestResolveACLsNegativeCache(t *testing.T) {
	store := testStore()
	now := time.Now()
	engine := NewEngine(testConfig(), store,
		WithNegativeCacheTTL(30*time.Second),
		withClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := engine.ResolveACLs(ctx, "nobody@x"); !errors.Is(err, ErrStaffNotFound) {
			t.Fatalf("ResolveACLs = %v, want ErrStaffNotFound", err)
		}
	}
	if store.lookups != 1 {
		t.Errorf("lookups = %d, want 1 (negative cache should absorb repeats)", store.lookups)
	}

	// Negative entries expire fast so new staff are picked up.
	now = now.Add(time.Minute)
	store.staff["nobody@x"] = &identity.Staff{Email: "nobody@x", Active: true}
	staff, err := engine.ResolveACLs(ctx, "nobody@x")
	if err != nil {
		t.Fatalf("ResolveACLs after negative expiry: %v", err)
	}
	if staff.Email != "nobody@x" {
		t.Errorf("staff.Email = %q", staff.Email)
	}
}

func TestResolveACLsBackendErrorNotCached(t *testing.T) {
	store := testStore()
	store.err = errors.New("connection refused")
	engine := NewEngine(testConfig(), store)
	ctx := context.Background()

	if _, err := engine.ResolveACLs(ctx, "a@x"); err == nil {
		t.Fatal("expected backend error")
	}
	if _, err := engine.ResolveACLs(ctx, "a@x"); err == nil {
		t.Fatal("expected backend error on retry")
	}
	if store.lookups != 2 {
		t.Errorf("lookups = %d, want 2 (backend errors must not be cached)", store.lookups)
	}

	d := engine.CheckToolAccess(ctx, "query", "a@x")
	if d.Allowed {
		t.Error("backend failure must fail closed")
	}
	if d.Reason == "User not found" {
		t.Error("backend failure must not masquerade as user-not-found")
	}
}

func TestInvalidate(t *testing.T) {
	store := testStore()
	engine := NewEngine(testConfig(), store)
	ctx := context.Background()

	_, _ = engine.ResolveACLs(ctx, "a@x")
	engine.Invalidate("A@X") // canonicalized before lookup
	_, _ = engine.ResolveACLs(ctx, "a@x")
	if store.lookups != 2 {
		t.Errorf("lookups = %d, want 2 after Invalidate", store.lookups)
	}

	engine.InvalidateAll()
	_, _ = engine.ResolveACLs(ctx, "a@x")
	if store.lookups != 3 {
		t.Errorf("lookups = %d, want 3 after InvalidateAll", store.lookups)
	}
}

func TestResolveEmail(t *testing.T) {
	engine := NewEngine(testConfig(), testStore())

	tests := []struct {
		name                       string
		meta, session, envFallback string
		want                       string
	}{
		{"meta wins", "Meta@X", "session@x", "env@x", "meta@x"},
		{"session when meta empty", "", "Session@X ", "env@x", "session@x"},
		{"fallback when both empty", "", "", "env@x", "env@x"},
		{"none yields empty", "", "", "", ""},
		{"whitespace meta skipped", "   ", "session@x", "", "session@x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.ResolveEmail(tt.meta, tt.session, tt.envFallback); got != tt.want {
				t.Errorf("ResolveEmail = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckToolAccessCanonicalizesEmail(t *testing.T) {
	engine := NewEngine(testConfig(), testStore())

	d := engine.CheckToolAccess(context.Background(), "query", "  A@X ")
	if !d.Allowed {
		t.Errorf("mixed-case email not canonicalized: %q", d.Reason)
	}
}
