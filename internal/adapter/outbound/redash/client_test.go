package redash

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/chetandr-lohono/lohono-db-connect/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.RedashConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: "5s",
	})
}

func TestGetQuery(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/queries/42" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Key test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42, "name": "Leads MTD", "query": "SELECT * FROM leads"}`))
	})

	q, err := c.GetQuery(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetQuery: %v", err)
	}
	if q.ID != 42 || q.Name != "Leads MTD" || q.Query != "SELECT * FROM leads" {
		t.Errorf("query = %+v", q)
	}
}

func TestGetQueryNotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.GetQuery(context.Background(), 999)
	if !errors.Is(err, ErrQueryNotFound) {
		t.Errorf("err = %v, want ErrQueryNotFound", err)
	}
	if err == nil || !strings.Contains(err.Error(), "999") {
		t.Errorf("error %v does not name the id", err)
	}
}

func TestGetQueryUnauthorized(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.GetQuery(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "credentials") {
		t.Errorf("err = %v, want a credentials error", err)
	}
}

func TestGetQueryNotConfigured(t *testing.T) {
	c := New(config.RedashConfig{Timeout: "5s"})
	if c.Configured() {
		t.Error("empty client reports configured")
	}
	if _, err := c.GetQuery(context.Background(), 1); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestParseQueryIDs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []int
		wantErr string
	}{
		{"commas", "1,2,3", []int{1, 2, 3}, ""},
		{"whitespace", "1 2\t3", []int{1, 2, 3}, ""},
		{"mixed", "1, 2,  3", []int{1, 2, 3}, ""},
		{"single", "42", []int{42}, ""},
		{"empty", "", []int{}, ""},
		{"bad token", "1,x,3", nil, `invalid query id "x"`},
		{"negative", "1,-2", nil, `invalid query id "-2"`},
		{"zero", "0", nil, `invalid query id "0"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQueryIDs(tt.input)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseQueryIDs(%q): %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseQueryIDs(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseQueryIDsIdempotent(t *testing.T) {
	first, err := ParseQueryIDs("7, 8 9")
	if err != nil {
		t.Fatal(err)
	}
	second, err := ParseQueryIDs("7, 8 9")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeat parse differs: %v vs %v", first, second)
	}
}
