package compaction

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts compaction work.
type Metrics struct {
	cycles   *prometheus.CounterVec
	sessions *prometheus.CounterVec
	archived prometheus.Counter
}

// NewMetrics creates the compaction counters and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memoryd_compaction_cycles_total",
				Help: "Compaction cycles by outcome (completed, skipped, failed)",
			},
			[]string{"outcome"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memoryd_compaction_sessions_total",
				Help: "Candidate sessions processed, by result",
			},
			[]string{"result"},
		),
		archived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "memoryd_compaction_archived_events_total",
				Help: "Events archived into session summaries",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.cycles, m.sessions, m.archived)
	}
	return m
}
