package compaction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/provider"
	"github.com/fyrsmithlabs/memoryd/internal/reranker"
	"github.com/fyrsmithlabs/memoryd/internal/store"
	"github.com/fyrsmithlabs/memoryd/internal/summarizer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type fakeSummarizer struct {
	provider.Static
	fn func(transcript string) (string, error)
}

func (f *fakeSummarizer) Summarize(_ context.Context, transcript string) (string, error) {
	if err := f.Check(); err != nil {
		return "", err
	}
	return f.fn(transcript)
}

func echoSummarizer() *fakeSummarizer {
	return &fakeSummarizer{
		Static: provider.NewStatic("fake", ""),
		fn: func(transcript string) (string, error) {
			return fmt.Sprintf("summary: %d events", strings.Count(transcript, "] (")), nil
		},
	}
}

type fixture struct {
	store *store.Store
	svc   *memory.Service
}

func newFixture(t *testing.T, sum summarizer.Provider) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	_, err = st.CreateNamespace(ctx, memory.DefaultNamespace)
	require.NoError(t, err)

	svc, err := memory.NewService(st, embeddings.NewDisabled(3), sum, reranker.NewDisabled(), nil, zap.NewNop())
	require.NoError(t, err)
	return &fixture{store: st, svc: svc}
}

func (f *fixture) ingest(t *testing.T, session string, n int, body string) {
	t.Helper()
	events := make([]memory.EventInput, n)
	for i := range events {
		events[i] = memory.EventInput{
			Title:     fmt.Sprintf("%s step %d", session, i),
			Body:      body,
			SessionID: session,
		}
	}
	_, err := f.svc.Ingest(context.Background(), memory.IngestRequest{Events: events})
	require.NoError(t, err)
}

func (f *fixture) unarchived(t *testing.T, session string) int {
	t.Helper()
	var n int
	require.NoError(t, f.store.DB().QueryRow(
		`SELECT COUNT(*) FROM events WHERE session_id = ? AND is_archived = 0`, session).Scan(&n))
	return n
}

func testConfig() Config {
	return Config{
		Enabled:        true,
		EventThreshold: 2,
		CharThreshold:  100000,
		Interval:       time.Minute,
		MaxEvents:      2000,
	}
}

func TestNew(t *testing.T) {
	_, err := New(nil, testConfig(), nil)
	assert.Error(t, err)

	f := newFixture(t, echoSummarizer())
	cfg := testConfig()
	cfg.Interval = time.Second
	l, err := New(f.svc, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, config.MinCompactionInterval, l.Interval())
}

func TestConfigFromApp(t *testing.T) {
	app := config.Default()
	assert.False(t, ConfigFromApp(app).Enabled, "summarizer none disables compaction")

	app.Summarizer.Provider = config.ProviderOpenAI
	cfg := ConfigFromApp(app)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 80, cfg.EventThreshold)
	assert.Equal(t, 24000, cfg.CharThreshold)
	assert.Equal(t, time.Minute, cfg.Interval)
}

func TestRunCycle_EndToEnd(t *testing.T) {
	f := newFixture(t, echoSummarizer())
	ctx := context.Background()
	f.ingest(t, "s1", 3, "working")

	metrics := NewMetrics(prometheus.NewRegistry())
	l, err := New(f.svc, testConfig(), zap.NewNop(), WithMetrics(metrics))
	require.NoError(t, err)

	res := l.RunCycle(ctx)
	assert.Equal(t, CycleResult{Candidates: 1, Summarized: 1, ArchivedEvents: 3}, res)
	assert.Zero(t, f.unarchived(t, "s1"))

	var (
		n       int
		content string
		tags    string
	)
	require.NoError(t, f.store.DB().QueryRow(`
		SELECT COUNT(*), MAX(content), MAX(tags) FROM knowledge_items
		WHERE source = ? AND source_ref = 's1'`, memory.SummarySource).Scan(&n, &content, &tags))
	assert.Equal(t, 1, n)
	assert.Equal(t, "summary: 3 events", content)
	assert.Contains(t, tags, "summary")

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.sessions.WithLabelValues("summarized")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.archived), 0)

	// Nothing left to compact.
	res = l.RunCycle(ctx)
	assert.Zero(t, res.Candidates)
}

func TestRunCycle_StrictThresholds(t *testing.T) {
	f := newFixture(t, echoSummarizer())
	f.ingest(t, "at", 2, "")
	f.ingest(t, "over", 3, "")

	l, err := New(f.svc, testConfig(), nil)
	require.NoError(t, err)

	res := l.RunCycle(context.Background())
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 2, f.unarchived(t, "at"))
	assert.Zero(t, f.unarchived(t, "over"))
}

func TestRunCycle_CharThreshold(t *testing.T) {
	f := newFixture(t, echoSummarizer())
	f.ingest(t, "long", 1, strings.Repeat("x", 200))

	cfg := testConfig()
	cfg.EventThreshold = 10
	cfg.CharThreshold = 100
	l, err := New(f.svc, cfg, nil)
	require.NoError(t, err)

	res := l.RunCycle(context.Background())
	assert.Equal(t, 1, res.Summarized)
	assert.Zero(t, f.unarchived(t, "long"))
}

func TestRunCycle_FailureIsIsolated(t *testing.T) {
	sum := echoSummarizer()
	sum.fn = func(transcript string) (string, error) {
		if strings.Contains(transcript, "sess-a") {
			return "", provider.Errorf("fake", "summarize", "upstream 503")
		}
		return "fine", nil
	}
	f := newFixture(t, sum)
	f.ingest(t, "sess-a", 3, "")
	f.ingest(t, "sess-b", 3, "")

	logs := logging.NewTestLogger()
	l, err := New(f.svc, testConfig(), logs.Underlying())
	require.NoError(t, err)

	res := l.RunCycle(context.Background())
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Summarized)
	assert.Equal(t, 3, f.unarchived(t, "sess-a"))
	assert.Zero(t, f.unarchived(t, "sess-b"))

	logs.AssertLogged(t, zapcore.WarnLevel, "compaction failed due to provider error")
	logs.AssertField(t, "compaction failed due to provider error", "session.id", "sess-a")
	logs.AssertField(t, "compaction failed due to provider error", "namespace", memory.DefaultNamespace)
	logs.AssertField(t, "compacted session", "session.id", "sess-b")
}

// panickyEngine panics while summarizing one session.
type panickyEngine struct {
	*memory.Service
	session string
}

func (p *panickyEngine) SummarizeSession(ctx context.Context, req memory.SummarizeRequest) (*memory.SummarizeResult, error) {
	if req.SessionID == p.session {
		panic("boom")
	}
	return p.Service.SummarizeSession(ctx, req)
}

func TestRunCycle_PanicIsIsolated(t *testing.T) {
	f := newFixture(t, echoSummarizer())
	f.ingest(t, "a", 3, "")
	f.ingest(t, "b", 3, "")

	logs := logging.NewTestLogger()
	l, err := New(&panickyEngine{Service: f.svc, session: "a"}, testConfig(), logs.Underlying())
	require.NoError(t, err)

	res := l.RunCycle(context.Background())
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Summarized)
	logs.AssertLogged(t, zapcore.ErrorLevel, "unexpected compaction failure")
}

func TestRunCycle_SkipsWhenSummarizerUnavailable(t *testing.T) {
	sum := echoSummarizer()
	sum.Static = provider.NewStatic("openai", "summarizer.api_key is not set")
	f := newFixture(t, sum)
	f.ingest(t, "s1", 5, "")

	logs := logging.NewTestLogger()
	l, err := New(f.svc, testConfig(), logs.Underlying())
	require.NoError(t, err)

	res := l.RunCycle(context.Background())
	assert.True(t, res.Skipped)
	assert.Equal(t, 5, f.unarchived(t, "s1"))
	logs.AssertLogged(t, zapcore.WarnLevel, "summarizer unavailable")
}

func TestRun_Disabled(t *testing.T) {
	f := newFixture(t, summarizer.NewDisabled())
	cfg := testConfig()
	cfg.Enabled = false
	l, err := New(f.svc, cfg, nil)
	require.NoError(t, err)

	assert.NoError(t, l.Run(context.Background()))
	assert.True(t, l.RunCycle(context.Background()).Skipped)
}

func TestRun_ReturnsContextError(t *testing.T) {
	f := newFixture(t, echoSummarizer())
	f.ingest(t, "s1", 3, "")

	l, err := New(f.svc, testConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return f.unarchived(t, "s1") == 0 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, echoSummarizer())
	l, err := New(f.svc, testConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, l.Start(context.Background()))
	assert.Error(t, l.Start(context.Background()), "already running")

	l.Stop()
	l.Stop()

	require.NoError(t, l.Start(context.Background()))
	l.Stop()
}
