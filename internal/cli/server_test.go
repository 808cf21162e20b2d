package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/kinship/pkg/cache"
	"github.com/matzehuels/kinship/pkg/graph"
	"github.com/matzehuels/kinship/pkg/pipeline"
)

func newTestServer(t *testing.T) (*httptest.Server, *server) {
	t.Helper()
	dir := t.TempDir()
	c := New(io.Discard, LogInfo)

	sess, release, err := c.serveSession(context.Background(), "", serveFlags{file: writeTree(t, dir)})
	if err != nil {
		t.Fatalf("serveSession: %v", err)
	}
	t.Cleanup(release)

	quiet := log.New(io.Discard)
	runner := pipeline.NewRunner(cache.NewNullCache(), nil, quiet)
	t.Cleanup(func() { runner.Close() })

	srv := newServer(sess, runner, c.pipelineOptions(), quiet)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts, srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestServer_Reads(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/healthz", "")
	health := decode[map[string]any](t, resp)
	if resp.StatusCode != http.StatusOK || health["graph_id"] != "g1" {
		t.Errorf("healthz = %d %v", resp.StatusCode, health)
	}

	resp = do(t, http.MethodGet, ts.URL+"/graph", "")
	g := decode[graph.Graph](t, resp)
	if len(g.Nodes) != 4 || len(g.Edges) != 4 {
		t.Errorf("graph has %d nodes and %d edges, want 4 and 4", len(g.Nodes), len(g.Edges))
	}

	resp = do(t, http.MethodGet, ts.URL+"/messages", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("messages without conversation = %d, want 404", resp.StatusCode)
	}
}

func TestServer_Diagram(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		path        string
		status      int
		contentType string
		prefix      string
	}{
		{"/diagram.svg", http.StatusOK, "image/svg+xml", "<svg"},
		{"/diagram.SVG?style=mono", http.StatusOK, "image/svg+xml", "<svg"},
		{"/diagram.dot", http.StatusOK, "text/vnd.graphviz; charset=utf-8", "digraph"},
		{"/diagram.json", http.StatusOK, "application/json", "{"},
		{"/diagram.gif", http.StatusBadRequest, "application/json", `{"error":"INVALID_FORMAT"`},
		{"/diagram.svg?renderer=crayon", http.StatusBadRequest, "application/json", `{"error"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := do(t, http.MethodGet, ts.URL+tt.path, "")
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.status, body)
			}
			if got := resp.Header.Get("Content-Type"); got != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", got, tt.contentType)
			}
			if !bytes.HasPrefix(body, []byte(tt.prefix)) {
				t.Errorf("body = %.60s, want prefix %q", body, tt.prefix)
			}
		})
	}

	resp := do(t, http.MethodGet, ts.URL+"/diagram.svg", "")
	if got := resp.Header.Get("X-Kinship-Unplaced"); got != "0" {
		t.Errorf("X-Kinship-Unplaced = %q, want 0 with auto placement", got)
	}
}

func TestServer_Persons(t *testing.T) {
	ts, srv := newTestServer(t)
	st := srv.sess.Store()

	resp := do(t, http.MethodPost, ts.URL+"/persons", `{"first_name":"Eve","x":300,"y":160}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d", resp.StatusCode)
	}
	eve := decode[graph.Node](t, resp)
	if eve.ID == "" || eve.X == nil || *eve.X != 300 {
		t.Errorf("created = %+v", eve)
	}
	if _, ok := st.Person(eve.ID); !ok {
		t.Error("created person not in store")
	}

	resp = do(t, http.MethodPatch, ts.URL+"/persons/"+eve.ID, `{"last_name":"Jones","x":null,"y":null}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch = %d", resp.StatusCode)
	}
	patched := decode[graph.Node](t, resp)
	if patched.LastName != "Jones" || patched.X != nil {
		t.Errorf("patched = %+v, want Jones without position", patched)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"UnknownPerson", http.MethodPatch, "/persons/nobody", `{"first_name":"X"}`, http.StatusNotFound},
		{"HalfPosition", http.MethodPatch, "/persons/ann", `{"x":1}`, http.StatusBadRequest},
		{"NonNumericPosition", http.MethodPatch, "/persons/ann", `{"x":"a","y":1}`, http.StatusBadRequest},
		{"UnknownField", http.MethodPost, "/persons", `{"nickname":"Bo"}`, http.StatusBadRequest},
		{"ControlInName", http.MethodPost, "/persons", `{"first_name":"A\u0007"}`, http.StatusBadRequest},
		{"BadJSON", http.MethodPost, "/persons", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, ts.URL+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}

	resp = do(t, http.MethodDelete, ts.URL+"/persons/cat", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete = %d", resp.StatusCode)
	}
	if _, ok := st.Person("cat"); ok {
		t.Error("cat survived delete")
	}
	for _, e := range st.Edges() {
		if e.Touches("cat") {
			t.Errorf("edge %s survived deleting cat", e.ID)
		}
	}
}

func TestServer_Edges(t *testing.T) {
	ts, srv := newTestServer(t)
	st := srv.sess.Store()

	resp := do(t, http.MethodPost, ts.URL+"/edges", `{"kind":"parent_child","source":"bob","target":"dan"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create edge = %d", resp.StatusCode)
	}
	e := decode[graph.Edge](t, resp)
	if e.ID == "" || e.Kind != "parent_child" {
		t.Errorf("created = %+v", e)
	}

	tests := []struct {
		name string
		body string
		code string
	}{
		{"Cycle", `{"kind":"parent_child","source":"dan","target":"ann"}`, "INVALID_EDGE"},
		{"SelfLoop", `{"kind":"partnership","source":"ann","target":"ann"}`, "INVALID_EDGE"},
		{"UnknownKind", `{"kind":"sibling","source":"ann","target":"bob"}`, "INVALID_EDGE"},
		{"UnknownPerson", `{"kind":"parent_child","source":"ann","target":"nobody"}`, "INVALID_EDGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, ts.URL+"/edges", tt.body)
			body := decode[map[string]string](t, resp)
			if resp.StatusCode != http.StatusBadRequest || body["error"] != tt.code {
				t.Errorf("response = %d %v, want 400 %s", resp.StatusCode, body, tt.code)
			}
		})
	}

	resp = do(t, http.MethodDelete, ts.URL+"/edges/"+e.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete edge = %d", resp.StatusCode)
	}
	for _, got := range st.Edges() {
		if got.ID == e.ID {
			t.Error("edge survived delete")
		}
	}
}

func TestServeSession_Errors(t *testing.T) {
	dir, _ := testEnv(t)
	c := New(io.Discard, LogInfo)

	if _, _, err := c.serveSession(context.Background(), "", serveFlags{}); err == nil {
		t.Error("serveSession without graph or file succeeded")
	}
	if _, _, err := c.serveSession(context.Background(), "", serveFlags{file: filepath.Join(dir, "none.json")}); err == nil {
		t.Error("serveSession with a missing file succeeded")
	}
	if _, _, err := c.serveSession(context.Background(), "g1", serveFlags{}); err == nil {
		t.Error("serveSession with nothing configured succeeded")
	}
}
