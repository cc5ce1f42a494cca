package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/memory"
)

// captured is the last request seen by the fake server.
type captured struct {
	method string
	path   string
	query  string
	body   map[string]any
}

func newFakeServer(t *testing.T, status int, response any) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.body = nil
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			assert.NoError(t, json.Unmarshal(raw, &got.body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs memctl against serverURL with fresh flag state.
func execute(t *testing.T, url, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append(args, "--server", url))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestHealth(t *testing.T) {
	srv, got := newFakeServer(t, http.StatusOK, memory.Health{
		Status: "ok", EmbeddingProvider: "ollama", EmbeddingAvailable: true,
		SummarizerProvider: "none", RerankerProvider: "none",
	})

	out, err := execute(t, srv.URL, "", "health")
	require.NoError(t, err)
	assert.Equal(t, "/health", got.path)
	assert.Contains(t, out, "Server Status: ok")
	assert.Contains(t, out, "Embeddings: ollama (available)")
	assert.Contains(t, out, "Summarizer: none (unavailable)")
}

func TestIngest(t *testing.T) {
	srv, got := newFakeServer(t, http.StatusOK, map[string]any{
		"namespace": "team-a",
		"counts":    memory.IngestCounts{Entities: 1, Events: 2},
	})

	t.Run("from stdin with namespace override", func(t *testing.T) {
		payload := `{"namespace": "other", "entities": [{"slug": "api", "type": "project", "name": "API"}]}`
		out, err := execute(t, srv.URL, payload, "ingest", "-", "--namespace", "team-a")
		require.NoError(t, err)
		assert.Equal(t, http.MethodPost, got.method)
		assert.Equal(t, "/ingest", got.path)
		assert.Equal(t, "team-a", got.body["namespace"])
		assert.Len(t, got.body["entities"], 1)
		assert.Contains(t, out, "Ingested into team-a: 1 entities, 0 requirements, 0 knowledge items, 2 events")
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "payload.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"events": [{"title": "x"}]}`), 0o600))
		_, err := execute(t, srv.URL, "", "ingest", path)
		require.NoError(t, err)
		assert.Equal(t, "", got.body["namespace"])
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := execute(t, srv.URL, "  \n", "ingest")
		assert.ErrorContains(t, err, "no content to ingest")
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := execute(t, srv.URL, "{", "ingest")
		assert.ErrorContains(t, err, "invalid ingest payload")
	})
}

func TestQuery(t *testing.T) {
	srv, got := newFakeServer(t, http.StatusOK, memory.QueryResponse{Namespace: "default", Results: []memory.QueryRecord{}})

	out, err := execute(t, srv.URL, "", "query", "deploy", "api", "--project", "proj", "--limit", "5")
	require.NoError(t, err)
	assert.Equal(t, "/query", got.path)
	assert.Equal(t, "limit=5&project_slug=proj&q=deploy+api", got.query)
	assert.Contains(t, out, `"namespace": "default"`)

	_, err = execute(t, srv.URL, "", "query")
	require.NoError(t, err)
	assert.Empty(t, got.query, "flags from the previous run do not leak")
}

func TestRecall(t *testing.T) {
	srv, got := newFakeServer(t, http.StatusOK, memory.RecallResponse{Namespace: "default", Scope: memory.ScopeEvents, TopK: 0})

	_, err := execute(t, srv.URL, "", "recall", "how", "to", "deploy", "--scope", "events", "--top-k", "0")
	require.NoError(t, err)
	assert.Equal(t, "/recall", got.path)
	assert.Equal(t, "how to deploy", got.body["query_text"])
	assert.Equal(t, "events", got.body["scope"])
	assert.Equal(t, float64(0), got.body["top_k"], "explicit zero is sent")

	_, err = execute(t, srv.URL, "", "recall", "x")
	require.NoError(t, err)
	assert.NotContains(t, got.body, "top_k")
	assert.Equal(t, "knowledge", got.body["scope"])

	_, err = execute(t, srv.URL, "", "recall")
	assert.Error(t, err, "query text is required")
}

func TestSummarize(t *testing.T) {
	srv, got := newFakeServer(t, http.StatusOK, memory.SummarizeResult{
		Namespace: "default", SessionID: "s1", ArchivedEvents: 4, SummaryKnowledgeItemID: "k1",
	})

	out, err := execute(t, srv.URL, "", "summarize", "s1", "--max-events", "10")
	require.NoError(t, err)
	assert.Equal(t, "/summarize_clear", got.path)
	assert.Equal(t, "s1", got.body["session_id"])
	assert.Equal(t, float64(10), got.body["max_events"])
	assert.Contains(t, out, "Archived 4 events from session s1")
	assert.Contains(t, out, "Summary knowledge item: k1")
}

func TestBackfill(t *testing.T) {
	srv, got := newFakeServer(t, http.StatusOK, memory.BackfillResult{
		Namespace: "default", Scope: memory.ScopeKnowledge, Updated: 3, Skipped: 1, DryRun: true,
	})

	out, err := execute(t, srv.URL, "", "backfill", "--dry-run", "--batch-size", "8")
	require.NoError(t, err)
	assert.Equal(t, "/admin/backfill-embeddings", got.path)
	assert.Equal(t, true, got.body["dry_run"])
	assert.Equal(t, float64(8), got.body["batch_size"])
	assert.Contains(t, out, "Would update 3 knowledge rows in default (1 skipped)")
}

func TestNamespaceCreate(t *testing.T) {
	srv, got := newFakeServer(t, http.StatusOK, map[string]any{
		"name": "team-a", "created_at": time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	out, err := execute(t, srv.URL, "", "namespace", "create", "team-a")
	require.NoError(t, err)
	assert.Equal(t, "/admin/namespaces", got.path)
	assert.Equal(t, "team-a", got.body["name"])
	assert.Contains(t, out, "Namespace team-a (created 2025-03-01T12:00:00Z)")
}

func TestServerErrors(t *testing.T) {
	t.Run("structured error", func(t *testing.T) {
		srv, _ := newFakeServer(t, http.StatusNotFound, errorResponse{Error: "namespace 'x' not found", Kind: "not_found"})
		_, err := execute(t, srv.URL, "", "summarize", "s1")
		assert.ErrorContains(t, err, "server returned status 404 (not_found): namespace 'x' not found")
	})

	t.Run("unstructured error", func(t *testing.T) {
		srv, _ := newFakeServer(t, http.StatusBadGateway, "upstream down")
		_, err := execute(t, srv.URL, "", "health")
		assert.ErrorContains(t, err, "server returned status 502")
	})

	t.Run("connection refused", func(t *testing.T) {
		srv, _ := newFakeServer(t, http.StatusOK, nil)
		url := srv.URL
		srv.Close()
		_, err := execute(t, url, "", "health")
		assert.ErrorContains(t, err, "failed to send request")
	})
}

func TestQueryString(t *testing.T) {
	assert.Equal(t, "", queryString(map[string]string{"q": ""}))
	assert.Equal(t, "?namespace=a&q=b+c", queryString(map[string]string{"q": "b c", "namespace": "a"}))
}
