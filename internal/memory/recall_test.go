package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/memoryd/internal/provider"
	"github.com/fyrsmithlabs/memoryd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedKnowledge(t *testing.T, env *testEnv) {
	t.Helper()
	_, err := env.svc.Ingest(context.Background(), IngestRequest{
		Entities: []EntityInput{{Slug: "proj", Type: store.EntityProject, Name: "P"}},
		KnowledgeItems: []KnowledgeInput{
			{Content: "far", Embedding: []float32{0, 0, 1}},
			{Content: "near", Embedding: []float32{1, 0, 0}, ProjectSlug: "proj"},
			{Content: "mid", Embedding: []float32{1, 1, 0}},
		},
	})
	require.NoError(t, err)
}

func snippets(items []RecallItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Snippet
	}
	return out
}

func intPtr(v int) *int { return &v }

func TestRecall_OrdersByDistance(t *testing.T) {
	env := newTestEnv(t)
	seedKnowledge(t, env)

	resp, err := env.svc.Recall(context.Background(), RecallRequest{QueryEmbedding: []float32{1, 0, 0}})
	require.NoError(t, err)

	assert.Equal(t, ScopeKnowledge, resp.Scope)
	assert.Equal(t, 5, resp.TopK)
	assert.Equal(t, []string{"near", "mid", "far"}, snippets(resp.Items))
	for i := 1; i < len(resp.Items); i++ {
		assert.LessOrEqual(t, resp.Items[i-1].Score, resp.Items[i].Score)
	}
	for _, it := range resp.Items {
		assert.Nil(t, it.RerankerScore)
		assert.Equal(t, ScopeKnowledge, it.Scope)
	}
}

func TestRecall_SkipsRowsWithUndefinedDistance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedKnowledge(t, env)

	// Provider output is stored as returned, so a zero vector can reach the table.
	env.embedder.vectorFor = func(string) ([]float32, error) { return []float32{0, 0, 0}, nil }
	_, err := env.svc.Ingest(ctx, IngestRequest{KnowledgeItems: []KnowledgeInput{{Content: "zero"}}})
	require.NoError(t, err)
	require.Equal(t, 4, countRows(t, env.store, `SELECT COUNT(*) FROM knowledge_items WHERE embedding IS NOT NULL`))

	resp, err := env.svc.Recall(ctx, RecallRequest{QueryEmbedding: []float32{1, 0, 0}, TopK: intPtr(10)})
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "mid", "far"}, snippets(resp.Items))
}

func TestRecall_TopKClamp(t *testing.T) {
	env := newTestEnv(t)
	seedKnowledge(t, env)
	ctx := context.Background()

	tests := []struct {
		topK     *int
		wantTopK int
		wantLen  int
	}{
		{intPtr(0), 1, 1},
		{intPtr(-3), 1, 1},
		{intPtr(2), 2, 2},
		{intPtr(500), MaxTopK, 3},
	}
	for _, tt := range tests {
		resp, err := env.svc.Recall(ctx, RecallRequest{QueryEmbedding: []float32{1, 0, 0}, TopK: tt.topK})
		require.NoError(t, err)
		assert.Equal(t, tt.wantTopK, resp.TopK)
		assert.Len(t, resp.Items, tt.wantLen)
	}
}

func TestRecall_DerivesVectorFromText(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Ingest(ctx, IngestRequest{Events: []EventInput{
		{Title: "alpha happened"},
		{Title: "gamma happened"},
	}})
	require.NoError(t, err)

	resp, err := env.svc.Recall(ctx, RecallRequest{Scope: ScopeEvents, QueryText: "gamma"})
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "gamma happened", resp.Items[0].Snippet)
}

func TestRecall_Filters(t *testing.T) {
	env := newTestEnv(t)
	seedKnowledge(t, env)
	ctx := context.Background()

	resp, err := env.svc.Recall(ctx, RecallRequest{QueryEmbedding: []float32{0, 0, 1}, ProjectSlug: "proj"})
	require.NoError(t, err)
	assert.Equal(t, []string{"near"}, snippets(resp.Items))

	_, err = env.svc.Recall(ctx, RecallRequest{QueryEmbedding: []float32{0, 0, 1}, EntitySlug: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "entity_slug 'ghost'")
}

func TestRecall_Errors(t *testing.T) {
	tests := []struct {
		name     string
		opts     []envOption
		req      RecallRequest
		wantKind Kind
		contains string
	}{
		{"missing query", nil, RecallRequest{}, KindValidation, "either query_embedding or query_text is required"},
		{"disabled embeddings", []envOption{withDisabledEmbeddings()}, RecallRequest{QueryText: "x"}, KindValidation, "provide query_embedding"},
		{"dimension mismatch", nil, RecallRequest{QueryEmbedding: []float32{1, 2}}, KindValidation, "expected 3, got 2"},
		{"zero query vector", nil, RecallRequest{QueryEmbedding: []float32{0, 0, 0}}, KindValidation, "zero vector"},
		{"unknown scope", nil, RecallRequest{Scope: "files", QueryText: "x"}, KindValidation, "unknown scope 'files'"},
		{"missing namespace", nil, RecallRequest{Namespace: "other", QueryText: "x"}, KindNotFound, "namespace 'other' not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.opts...)
			_, err := env.svc.Recall(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, Classify(err))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestRecall_ProviderErrors(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.vectorFor = func(string) ([]float32, error) {
		return nil, provider.Errorf("fake", "embed", "connection refused")
	}
	_, err := env.svc.Recall(context.Background(), RecallRequest{QueryText: "x"})
	assert.Equal(t, KindProvider, Classify(err))

	env.embedder.Static = provider.NewStatic("ollama", "embeddings.base_url is not set")
	_, err = env.svc.Recall(context.Background(), RecallRequest{QueryText: "x"})
	assert.ErrorIs(t, err, provider.ErrUnavailable)
}

// invertingReranker scores documents in reverse of their input order.
func invertingReranker() *fakeReranker {
	return &fakeReranker{
		Static: provider.NewStatic("fake-rerank", ""),
		score: func(_ string, docs []string) ([]float64, error) {
			scores := make([]float64, len(docs))
			for i := range docs {
				scores[i] = float64(i+1) / float64(len(docs))
			}
			return scores, nil
		},
	}
}

func TestRecall_RerankIsAdvisoryByDefault(t *testing.T) {
	env := newTestEnv(t, withReranker(invertingReranker()))
	seedKnowledge(t, env)

	resp, err := env.svc.Recall(context.Background(), RecallRequest{
		QueryText:      "anything",
		QueryEmbedding: []float32{1, 0, 0},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"near", "mid", "far"}, snippets(resp.Items), "distance order kept")
	require.NotNil(t, resp.Items[2].RerankerScore)
	assert.InDelta(t, 1.0, *resp.Items[2].RerankerScore, 1e-9)
	assert.Greater(t, *resp.Items[2].RerankerScore, *resp.Items[0].RerankerScore)
}

func TestRecall_RerankReorder(t *testing.T) {
	env := newTestEnv(t,
		withReranker(invertingReranker()),
		withConfig(func(c *Config) { c.RerankReorder = true }))
	seedKnowledge(t, env)

	resp, err := env.svc.Recall(context.Background(), RecallRequest{
		QueryText:      "anything",
		QueryEmbedding: []float32{1, 0, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"far", "mid", "near"}, snippets(resp.Items))
}

func TestRecall_RerankFailureIsNotFatal(t *testing.T) {
	var called bool
	rr := &fakeReranker{
		Static: provider.NewStatic("fake-rerank", ""),
		score: func(string, []string) ([]float64, error) {
			called = true
			return nil, errors.New("model crashed")
		},
	}
	env := newTestEnv(t, withReranker(rr))
	seedKnowledge(t, env)

	resp, err := env.svc.Recall(context.Background(), RecallRequest{QueryText: "alpha"})
	require.NoError(t, err)
	assert.True(t, called)
	require.NotEmpty(t, resp.Items)
	for _, it := range resp.Items {
		assert.Nil(t, it.RerankerScore)
	}
}

func TestRecall_RerankSkippedWithoutQueryText(t *testing.T) {
	var called bool
	rr := &fakeReranker{
		Static: provider.NewStatic("fake-rerank", ""),
		score: func(string, []string) ([]float64, error) {
			called = true
			return nil, nil
		},
	}
	env := newTestEnv(t, withReranker(rr))
	seedKnowledge(t, env)

	_, err := env.svc.Recall(context.Background(), RecallRequest{QueryEmbedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRecall_ClipsSnippets(t *testing.T) {
	env := newTestEnv(t, withConfig(func(c *Config) { c.MaxSnippetChars = 10 }))
	ctx := context.Background()

	_, err := env.svc.Ingest(ctx, IngestRequest{Requirements: []RequirementInput{
		{Title: "t", Body: strings.Repeat("x", 50), Embedding: []float32{1, 0, 0}},
	}})
	require.NoError(t, err)

	resp, err := env.svc.Recall(ctx, RecallRequest{Scope: ScopeRequirements, QueryEmbedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "xxxxxxx...", resp.Items[0].Snippet)
}
