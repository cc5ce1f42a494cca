// Package compaction runs the background loop that collapses long agent
// sessions into summary knowledge items.
//
// Each cycle asks the engine for sessions whose unarchived events exceed the
// configured count or character thresholds and summarizes them one by one.
// A failing session never stops the cycle or the loop.
package compaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/store"
	"github.com/fyrsmithlabs/memoryd/internal/summarizer"
	"go.uber.org/zap"
)

// Engine is the part of memory.Service the loop drives.
type Engine interface {
	CompactionCandidates(ctx context.Context, eventThreshold, charThreshold int) ([]store.Candidate, error)
	SummarizeSession(ctx context.Context, req memory.SummarizeRequest) (*memory.SummarizeResult, error)
	Summarizer() summarizer.Provider
}

// Config controls the loop.
type Config struct {
	Enabled        bool
	EventThreshold int
	CharThreshold  int
	Interval       time.Duration
	MaxEvents      int
}

// ConfigFromApp derives the loop configuration. Compaction is disabled when
// no summarizer is configured.
func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		Enabled:        cfg.CompactionEnabled(),
		EventThreshold: cfg.Compaction.EventThreshold,
		CharThreshold:  cfg.Compaction.CharThreshold,
		Interval:       cfg.Compaction.Interval.Duration(),
		MaxEvents:      cfg.Compaction.MaxEvents,
	}
}

// CycleResult summarizes one compaction cycle.
type CycleResult struct {
	// Skipped is set when the cycle did not look for candidates.
	Skipped        bool
	Candidates     int
	Summarized     int
	Failed         int
	ArchivedEvents int
}

// Loop periodically compacts sessions.
//
// Run blocks on the caller's goroutine; Start and Stop manage a background
// goroutine for the daemon.
type Loop struct {
	engine  Engine
	config  Config
	logger  *zap.Logger
	metrics *Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Loop.
type Option func(*Loop)

// WithMetrics records cycle results into m.
func WithMetrics(m *Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// New creates a compaction loop. The interval is raised to
// config.MinCompactionInterval when shorter.
func New(engine Engine, cfg Config, logger *zap.Logger, opts ...Option) (*Loop, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Interval = max(cfg.Interval, config.MinCompactionInterval)

	l := &Loop{
		engine:  engine,
		config:  cfg,
		logger:  logger,
		metrics: NewMetrics(nil),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Interval returns the effective time between cycles.
func (l *Loop) Interval() time.Duration {
	return l.config.Interval
}

// Run executes a cycle immediately and then once per interval until ctx is
// cancelled, returning ctx.Err(). A disabled loop returns nil at once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.config.Enabled {
		l.logger.Info("compaction loop disabled")
		return nil
	}

	l.logger.Info("compaction loop started",
		zap.Duration("interval", l.config.Interval),
		zap.Int("event_threshold", l.config.EventThreshold),
		zap.Int("char_threshold", l.config.CharThreshold))
	defer l.logger.Info("compaction loop stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			l.safeRunCycle(ctx)
			timer.Reset(l.config.Interval)
		}
	}
}

// Start runs the loop on a background goroutine.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return errors.New("compaction loop is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel, l.done = cancel, done

	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	return nil
}

// Stop cancels the background goroutine and waits for the current
// candidate to finish. It is a no-op when the loop is not running.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// safeRunCycle keeps a panicking cycle from ending the loop.
func (l *Loop) safeRunCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.metrics.cycles.WithLabelValues("failed").Inc()
			l.logger.Error("compaction cycle panicked, continuing loop",
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	l.RunCycle(ctx)
}

// RunCycle runs exactly one compaction cycle. Cancellation is checked
// between candidates; a candidate in progress always completes.
func (l *Loop) RunCycle(ctx context.Context) CycleResult {
	var res CycleResult

	if !l.config.Enabled {
		res.Skipped = true
		return res
	}
	if sum := l.engine.Summarizer(); !sum.Available() {
		l.logger.Warn("compaction skipped; summarizer unavailable",
			zap.String("provider", sum.Name()),
			zap.String("reason", sum.UnavailableReason()))
		l.metrics.cycles.WithLabelValues("skipped").Inc()
		res.Skipped = true
		return res
	}

	candidates, err := l.engine.CompactionCandidates(ctx, l.config.EventThreshold, l.config.CharThreshold)
	if err != nil {
		l.logger.Error("compaction cycle failed", zap.Error(err))
		l.metrics.cycles.WithLabelValues("failed").Inc()
		return res
	}
	res.Candidates = len(candidates)

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		archived, err := l.compact(context.WithoutCancel(ctx), c)
		if err != nil {
			res.Failed++
			continue
		}
		res.Summarized++
		res.ArchivedEvents += archived
	}

	l.metrics.cycles.WithLabelValues("completed").Inc()
	if res.Candidates > 0 {
		l.logger.Info("compaction cycle finished",
			zap.Int("candidates", res.Candidates),
			zap.Int("summarized", res.Summarized),
			zap.Int("failed", res.Failed),
			zap.Int("archived_events", res.ArchivedEvents))
	}
	return res
}

// compact summarizes one candidate, logging any failure by kind.
func (l *Loop) compact(ctx context.Context, c store.Candidate) (int, error) {
	ctx = logging.WithSessionID(logging.WithNamespace(ctx, c.Namespace), c.SessionID)
	logger := logging.For(ctx, l.logger)
	fields := []zap.Field{
		zap.Int("event_count", c.EventCount),
		zap.Int("char_count", c.CharCount),
	}

	res, err := l.summarize(ctx, c)
	if err != nil {
		kind := memory.Classify(err)
		l.metrics.sessions.WithLabelValues(string(kind)).Inc()
		fields = append(fields, zap.Error(err))
		switch kind {
		case memory.KindNotFound, memory.KindValidation:
			logger.Warn("compaction skipped for candidate", fields...)
		case memory.KindProvider:
			logger.Warn("compaction failed due to provider error", fields...)
		default:
			logger.Error("unexpected compaction failure", fields...)
		}
		return 0, err
	}

	l.metrics.sessions.WithLabelValues("summarized").Inc()
	l.metrics.archived.Add(float64(res.ArchivedEvents))
	logger.Info("compacted session", append(fields,
		zap.Int("archived_events", res.ArchivedEvents),
		zap.String("knowledge_item_id", res.SummaryKnowledgeItemID))...)
	return res.ArchivedEvents, nil
}

// summarize turns a panic inside one candidate into an error so the
// remaining candidates still run.
func (l *Loop) summarize(ctx context.Context, c store.Candidate) (res *memory.SummarizeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("summarizing session %q panicked: %v", c.SessionID, r)
		}
	}()
	return l.engine.SummarizeSession(ctx, memory.SummarizeRequest{
		Namespace: c.Namespace,
		SessionID: c.SessionID,
		ProjectID: c.ProjectID,
		MaxEvents: l.config.MaxEvents,
	})
}
