package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func testConfig(name, baseURL string) config.RerankerConfig {
	return config.RerankerConfig{
		Provider: name,
		Model:    "test-model",
		BaseURL:  baseURL,
		Timeout:  config.Duration(2 * time.Second),
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		want any
	}{
		{config.ProviderNone, &Disabled{}},
		{config.ProviderOllama, &Ollama{}},
		{config.ProviderTEI, &TEI{}},
		{config.ProviderLexical, &Lexical{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(testConfig(tt.name, "http://localhost:1"), zap.NewNop())
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}

	_, err := New(testConfig("colbert", ""), zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDisabled(t *testing.T) {
	p := NewDisabled()
	assert.False(t, p.Available())

	_, err := p.Score(context.Background(), "q", []string{"d"})
	assert.ErrorIs(t, err, provider.ErrUnavailable)
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		output string
		want   float64
		ok     bool
	}{
		{"0.85", 0.85, true},
		{" Relevance: 1", 1, true},
		{"0", 0, true},
		{"score is 0.3 out of 1", 0.3, true},
		{"1.5", 1, true},
		{"highly relevant", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			got, ok := parseScore(tt.output)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestOllama_Score(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, 5, req.Options.NumPredict)
		assert.Contains(t, req.Prompt, "Query: deploy")

		answer := "0.9"
		switch {
		case strings.Contains(req.Prompt, "Document: unrelated"):
			answer = "no idea"
		case strings.Contains(req.Prompt, "Document: partial"):
			answer = "0.4"
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Response: answer})
	}))
	defer srv.Close()

	logger := logging.NewTestLogger()
	p, err := New(testConfig(config.ProviderOllama, srv.URL), logger.Underlying())
	require.NoError(t, err)

	scores, err := p.Score(context.Background(), "deploy", []string{"deploy steps", "unrelated", "partial"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0, 0.4}, scores)
	assert.Equal(t, int32(3), calls.Load())
	logger.AssertLogged(t, zapcore.WarnLevel, "no score")
}

func TestOllama_TransportFailureFailsCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New(testConfig(config.ProviderOllama, srv.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = p.Score(context.Background(), "q", []string{"a"})
	assert.ErrorIs(t, err, provider.ErrProvider)
}

func TestTEI_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)

		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "q", req.Query)
		assert.Len(t, req.Texts, 3)

		// ranked order, not input order
		_, _ = w.Write([]byte(`[{"index":2,"score":0.95},{"index":0,"score":0.5},{"index":1,"score":0.01}]`))
	}))
	defer srv.Close()

	p, err := New(testConfig(config.ProviderTEI, srv.URL), zap.NewNop())
	require.NoError(t, err)

	scores, err := p.Score(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.01, 0.95}, scores)
}

func TestTEI_BadIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"index":7,"score":0.5}]`))
	}))
	defer srv.Close()

	p, err := New(testConfig(config.ProviderTEI, srv.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = p.Score(context.Background(), "q", []string{"a"})
	assert.ErrorIs(t, err, provider.ErrProvider)
}

func TestLexical_Score(t *testing.T) {
	p := NewLexical()
	require.True(t, p.Available())

	scores, err := p.Score(context.Background(), "authentication token retry", []string{
		"use retry with exponential backoff for authentication",
		"invalid request parameter",
		"token refresh and authentication handling with retry",
	})
	require.NoError(t, err)
	require.Len(t, scores, 3)

	assert.InDelta(t, 2.0/3.0, scores[0], 1e-9)
	assert.Zero(t, scores[1])
	assert.InDelta(t, 1.0, scores[2], 1e-9)
}

func TestLexical_StopwordOnlyQuery(t *testing.T) {
	scores, err := NewLexical().Score(context.Background(), "the and of", []string{"the doc", "other"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, scores)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"deploy", "service", "v2_api"}, tokenize("Deploy THE service, v2_api! to it"))
}
