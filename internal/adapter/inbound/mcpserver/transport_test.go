package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/outbound/postgres"
	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/outbound/redash"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/acl"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/identity"
	"github.com/chetandr-lohono/lohono-db-connect/internal/service"
	"github.com/chetandr-lohono/lohono-db-connect/internal/toolset"
)

type fakeDB struct{}

func (fakeDB) ExecuteReadOnly(ctx context.Context, query string, params []any) (*postgres.QueryResult, error) {
	return &postgres.QueryResult{RowCount: 1, Rows: []map[string]any{{"one": 1}}}, nil
}
func (fakeDB) ListSchemas(ctx context.Context) ([]string, error) { return nil, nil }
func (fakeDB) ListTables(ctx context.Context, schema string) ([]postgres.TableInfo, error) {
	return nil, nil
}
func (fakeDB) DescribeTable(ctx context.Context, schema, table string) ([]postgres.ColumnInfo, error) {
	return nil, nil
}

type fakeRedash struct{}

func (fakeRedash) Configured() bool { return false }
func (fakeRedash) GetQuery(ctx context.Context, id int) (*redash.Query, error) {
	return nil, redash.ErrNotConfigured
}

type staffDir map[string]*identity.Staff

func (d staffDir) GetStaff(ctx context.Context, email string) (*identity.Staff, error) {
	if s, ok := d[email]; ok {
		return s, nil
	}
	return nil, acl.ErrStaffNotFound
}

func testDispatcher(t *testing.T) *service.Dispatcher {
	t.Helper()
	engine := acl.NewEngine(
		&acl.Config{
			DefaultPolicy: acl.PolicyDeny,
			ToolACLs:      map[string][]string{"query": {"DB_VIEW"}},
		},
		staffDir{
			"a@x": {Email: "a@x", Active: true, ACLs: []string{"DB_VIEW"}},
			"b@x": {Email: "b@x", Active: true, ACLs: []string{"OTHER"}},
		},
	)
	catalog, err := toolset.New(toolset.Deps{DB: fakeDB{}, Redash: fakeRedash{}, Engine: engine})
	if err != nil {
		t.Fatal(err)
	}
	return service.NewDispatcher(catalog, engine, "", nil)
}

func TestServeStdio(t *testing.T) {
	d := testDispatcher(t)

	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc": "2.0", "id": 1, "method": "initialize", "params": {}}`,
		`{"jsonrpc": "2.0", "method": "notifications/initialized"}`,
		`{"jsonrpc": "2.0", "id": 2, "method": "tools/list", "params": {"_meta": {"user_email": "a@x"}}}`,
		``,
	}, "\n"))
	var out bytes.Buffer

	if err := ServeStdio(context.Background(), in, &out, d, nil); err != nil {
		t.Fatalf("ServeStdio: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d response lines, want 2 (notification answered?)\n%s", len(lines), out.String())
	}

	var first struct {
		ID     int `json:"id"`
		Result struct {
			ProtocolVersion string `json:"protocolVersion"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.ID != 1 || first.Result.ProtocolVersion == "" {
		t.Errorf("initialize response = %s", lines[0])
	}

	var second struct {
		ID     int `json:"id"`
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if second.ID != 2 || len(second.Result.Tools) != 1 {
		t.Errorf("tools/list response = %s", lines[1])
	}
}

// sseClient drives one SSE session against the test server.
type sseClient struct {
	t       *testing.T
	resp    *http.Response
	reader  *bufio.Reader
	postURL string
}

func openSSE(t *testing.T, baseURL, email string) *sseClient {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, baseURL+"/sse", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-User-Email", email)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	c := &sseClient{t: t, resp: resp, reader: bufio.NewReader(resp.Body)}

	event, data := c.readEvent()
	if event != "endpoint" {
		t.Fatalf("first event = %q, want endpoint", event)
	}
	c.postURL = baseURL + data
	return c
}

func (c *sseClient) close() {
	c.resp.Body.Close()
}

// readEvent reads one complete SSE event.
func (c *sseClient) readEvent() (event, data string) {
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			c.t.Fatalf("stream read failed: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if data != "" {
				return event, data
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func (c *sseClient) post(body string) {
	resp, err := http.Post(c.postURL, "application/json", strings.NewReader(body))
	if err != nil {
		c.t.Fatalf("post failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		c.t.Fatalf("post status = %d", resp.StatusCode)
	}
}

func TestSSESessionsKeepIdentitiesSeparate(t *testing.T) {
	defer goleak.VerifyNone(t)
	defer http.DefaultClient.CloseIdleConnections()

	sse := NewSSEServer(testDispatcher(t), nil, nil)
	mux := http.NewServeMux()
	mux.Handle("GET /sse", sse.StreamHandler())
	mux.Handle("POST /messages", sse.MessageHandler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	alice := openSSE(t, srv.URL, "a@x")
	defer alice.close()
	bob := openSSE(t, srv.URL, "b@x")
	defer bob.close()

	if alice.postURL == bob.postURL {
		t.Fatal("sessions share a handle")
	}
	if sse.SessionCount() != 2 {
		t.Errorf("SessionCount = %d, want 2", sse.SessionCount())
	}

	// Both sessions call the same tool concurrently; each must be judged
	// under its own identity.
	call := `{"jsonrpc": "2.0", "id": 10, "method": "tools/call", "params": {"name": "query", "arguments": {"sql": "SELECT 1"}}}`
	alice.post(call)
	bob.post(call)

	type callResult struct {
		Result struct {
			IsError bool `json:"isError"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}

	var aliceRes, bobRes callResult
	_, aliceData := alice.readEvent()
	if err := json.Unmarshal([]byte(aliceData), &aliceRes); err != nil {
		t.Fatal(err)
	}
	_, bobData := bob.readEvent()
	if err := json.Unmarshal([]byte(bobData), &bobRes); err != nil {
		t.Fatal(err)
	}

	if aliceRes.Result.IsError {
		t.Errorf("a@x denied: %+v", aliceRes.Result)
	}
	if !bobRes.Result.IsError || !strings.Contains(bobRes.Result.Content[0].Text, "DB_VIEW") {
		t.Errorf("b@x result = %+v, want a denial naming DB_VIEW", bobRes.Result)
	}
}

func TestSSEUnknownSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	defer http.DefaultClient.CloseIdleConnections()

	sse := NewSSEServer(testDispatcher(t), nil, nil)
	srv := httptest.NewServer(sse.MessageHandler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/messages?session_id=bogus", "application/json",
		strings.NewReader(`{"jsonrpc": "2.0", "id": 1, "method": "ping"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSSEUnregisterOnDisconnect(t *testing.T) {
	defer goleak.VerifyNone(t)
	defer http.DefaultClient.CloseIdleConnections()

	sse := NewSSEServer(testDispatcher(t), nil, nil)
	mux := http.NewServeMux()
	mux.Handle("GET /sse", sse.StreamHandler())
	mux.Handle("POST /messages", sse.MessageHandler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := openSSE(t, srv.URL, "a@x")
	if sse.SessionCount() != 1 {
		t.Fatalf("SessionCount = %d, want 1", sse.SessionCount())
	}
	c.close()

	// The server notices the disconnect asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for sse.SessionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not unregistered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSSEShutdownReleasesStreams(t *testing.T) {
	defer goleak.VerifyNone(t)
	defer http.DefaultClient.CloseIdleConnections()

	sse := NewSSEServer(testDispatcher(t), nil, nil)
	mux := http.NewServeMux()
	mux.Handle("GET /sse", sse.StreamHandler())
	mux.Handle("POST /messages", sse.MessageHandler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := openSSE(t, srv.URL, "a@x")
	defer c.close()
	if sse.SessionCount() != 1 {
		t.Fatalf("SessionCount = %d, want 1", sse.SessionCount())
	}

	sse.Shutdown()
	sse.Shutdown()

	// The handler returns without the client hanging up, so the client's
	// stream ends.
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, c.resp.Body)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open after shutdown")
	}

	deadline := time.Now().Add(2 * time.Second)
	for sse.SessionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sessions still registered after shutdown")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
