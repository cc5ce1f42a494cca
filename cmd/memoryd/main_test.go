package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestMainIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	home := t.TempDir()
	port := freePort(t)
	t.Setenv("HOME", home)
	t.Setenv("MEMORYD_SERVER_HOST", "127.0.0.1")
	t.Setenv("MEMORYD_SERVER_HTTP_PORT", fmt.Sprint(port))
	t.Setenv("MEMORYD_STORAGE_PATH", filepath.Join(home, "data", "memory.db"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, "")
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 5*time.Second, 50*time.Millisecond, "server did not come up")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, false, health["compaction_enabled"])

	ingest, err := http.Post(base+"/ingest", "application/json",
		strings.NewReader(`{"events": [{"title": "deployed api", "session_id": "s1"}]}`))
	require.NoError(t, err)
	ingest.Body.Close()
	assert.Equal(t, http.StatusOK, ingest.StatusCode)

	metrics, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)

	_, err = os.Stat(filepath.Join(home, "data", "memory.db"))
	assert.NoError(t, err, "database file is created")

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MEMORYD_SERVER_HTTP_PORT", "-1")

	err := run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading configuration")
}
