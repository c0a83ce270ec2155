// Package metrics provides Prometheus metrics for pathminer jobs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MikeSquared-Agency/pathminer/internal/extract"
)

// Unit outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics holds the job metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	UnitsTotal          *prometheus.CounterVec
	UnitDuration        *prometheus.HistogramVec
	DecisionPointsTotal prometheus.Counter
	SkippedTurnsTotal   *prometheus.CounterVec
	FilesWrittenTotal   *prometheus.CounterVec
	RunsInProgress      prometheus.Gauge
}

// New registers the metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UnitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pathminer_units_total",
				Help: "Units of work handled, by job and outcome",
			},
			[]string{"job", "outcome"},
		),
		UnitDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pathminer_unit_duration_seconds",
				Help:    "Time spent on one unit of work",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		DecisionPointsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "pathminer_decision_points_total",
				Help: "Decision points written",
			},
		),
		SkippedTurnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pathminer_skipped_turns_total",
				Help: "Transcript turns that did not become decision points, by reason",
			},
			[]string{"reason"},
		),
		FilesWrittenTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pathminer_files_written_total",
				Help: "Output files written, by job",
			},
			[]string{"job"},
		),
		RunsInProgress: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "pathminer_runs_in_progress",
				Help: "Jobs currently running",
			},
		),
	}
}

func (m *Metrics) ObserveUnit(job, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.UnitsTotal.WithLabelValues(job, outcome).Inc()
	if outcome != OutcomeSkipped {
		m.UnitDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveExtraction(res extract.Result) {
	if m == nil {
		return
	}
	m.DecisionPointsTotal.Add(float64(res.DecisionPoints))
	s := res.Skipped
	for reason, n := range map[string]int{
		"not_matched":  s.NotMatched,
		"not_depth2":   s.NotDepth2,
		"seen":         s.Seen,
		"no_user_turn": s.NoUserTurn,
		"exact_match":  s.ExactMatch,
		"sentinel":     s.Sentinel,
		"empty":        s.Empty,
	} {
		if n > 0 {
			m.SkippedTurnsTotal.WithLabelValues(reason).Add(float64(n))
		}
	}
}

func (m *Metrics) FilesWritten(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FilesWrittenTotal.WithLabelValues(job).Add(float64(n))
}

// RunStarted marks a job as running and returns a func that marks it done.
func (m *Metrics) RunStarted() func() {
	if m == nil {
		return func() {}
	}
	m.RunsInProgress.Inc()
	return m.RunsInProgress.Dec
}
