package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/fyrsmithlabs/memoryd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedQueryData(t *testing.T, env *testEnv) {
	t.Helper()
	_, err := env.svc.Ingest(context.Background(), IngestRequest{
		Entities: []EntityInput{
			{Slug: "proj", Type: store.EntityProject, Name: "Deploy pipeline", Description: "ships builds"},
			{Slug: "bot", Type: store.EntityAgent, Name: "Release bot"},
		},
		Requirements: []RequirementInput{
			{ProjectSlug: "proj", Title: "Deploy on green", Body: "only after CI passes", ContextSnippet: "from retro"},
		},
		KnowledgeItems: []KnowledgeInput{
			{ProjectSlug: "proj", Content: "Deploys run at noon", Source: "runbook"},
			{Content: "unrelated"},
		},
		Events: []EventInput{
			{AgentSlug: "bot", Title: "Started DEPLOY", Body: "rolling out"},
		},
	})
	require.NoError(t, err)
}

func TestQuery_UnionNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	seedQueryData(t, env)

	resp, err := env.svc.Query(context.Background(), QueryRequest{Text: "deploy"})
	require.NoError(t, err)

	kinds := make([]store.Kind, len(resp.Results))
	for i, r := range resp.Results {
		kinds[i] = r.Kind
	}
	// Rows are created in ingest order: entities, requirements, knowledge, events.
	assert.Equal(t, []store.Kind{store.KindEvent, store.KindKnowledge, store.KindRequirement, store.KindEntity}, kinds)
	assert.Equal(t, 4, resp.Total)
	for i := 1; i < len(resp.Results); i++ {
		assert.False(t, resp.Results[i].CreatedAt.After(resp.Results[i-1].CreatedAt))
	}

	byKind := map[store.Kind]QueryRecord{}
	for _, r := range resp.Results {
		byKind[r.Kind] = r
	}
	assert.Equal(t, "from retro", byKind[store.KindRequirement].Snippet)
	assert.Equal(t, "runbook", byKind[store.KindKnowledge].Title)
	assert.Equal(t, []string{"project"}, byKind[store.KindEntity].Tags)
	assert.Equal(t, "rolling out", byKind[store.KindEvent].Snippet)
}

func TestQuery_NonASCIICaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.Ingest(ctx, IngestRequest{
		KnowledgeItems: []KnowledgeInput{{Content: "Rendez-vous au CAFÉ demain"}},
		Events:         []EventInput{{Title: "Ünïcode ROLLOUT"}},
	})
	require.NoError(t, err)

	resp, err := env.svc.Query(ctx, QueryRequest{Text: "café"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, store.KindKnowledge, resp.Results[0].Kind)

	resp, err = env.svc.Query(ctx, QueryRequest{Text: "üNÏCODE"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, store.KindEvent, resp.Results[0].Kind)
}

func TestQuery_EmptyTextMatchesEverything(t *testing.T) {
	env := newTestEnv(t)
	seedQueryData(t, env)

	resp, err := env.svc.Query(context.Background(), QueryRequest{})
	require.NoError(t, err)
	assert.Equal(t, 6, resp.Total)
}

func TestQuery_Filters(t *testing.T) {
	env := newTestEnv(t)
	seedQueryData(t, env)
	ctx := context.Background()

	resp, err := env.svc.Query(ctx, QueryRequest{ProjectSlug: "proj"})
	require.NoError(t, err)
	// Project filter narrows requirements, knowledge and events; entities are unfiltered.
	var knowledge int
	for _, r := range resp.Results {
		if r.Kind == store.KindKnowledge {
			knowledge++
		}
		assert.NotEqual(t, store.KindEvent, r.Kind)
	}
	assert.Equal(t, 1, knowledge)

	resp, err = env.svc.Query(ctx, QueryRequest{EntitySlug: "bot"})
	require.NoError(t, err)
	var entities, events int
	for _, r := range resp.Results {
		switch r.Kind {
		case store.KindEntity:
			entities++
			assert.Equal(t, "Release bot", r.Title)
		case store.KindEvent:
			events++
		}
	}
	assert.Equal(t, 1, entities)
	assert.Equal(t, 1, events)

	_, err = env.svc.Query(ctx, QueryRequest{ProjectSlug: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "project_slug 'ghost' not found in namespace 'default'")
}

func TestQuery_LimitClamp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	events := make([]EventInput, 120)
	for i := range events {
		events[i] = EventInput{Title: fmt.Sprintf("event %d", i)}
	}
	_, err := env.svc.Ingest(ctx, IngestRequest{Events: events})
	require.NoError(t, err)

	tests := []struct {
		limit int
		want  int
	}{
		{0, DefaultQueryLimit},
		{-5, 1},
		{3, 3},
		{1000, MaxQueryLimit},
	}
	for _, tt := range tests {
		resp, err := env.svc.Query(ctx, QueryRequest{Limit: tt.limit})
		require.NoError(t, err)
		assert.Len(t, resp.Results, tt.want, "limit %d", tt.limit)
	}

	resp, err := env.svc.Query(ctx, QueryRequest{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "event 119", resp.Results[0].Title)
}

func TestQuery_MissingNamespace(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Query(context.Background(), QueryRequest{Namespace: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}
