package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for identity resolution and merging.
type Metrics struct {
	// Resolutions by method: mapping, exact, fuzzy, fuzzy_base, created, not_found
	Resolutions *prometheus.CounterVec

	// Attach row outcomes by source system and outcome
	AttachRows *prometheus.CounterVec

	AttachDuration *prometheus.HistogramVec

	// Merge attempts by status: merged, skipped, failed
	MergeOutcomes *prometheus.CounterVec

	DuplicateCandidates prometheus.Counter

	FlagRefreshes *prometheus.CounterVec
}

// New registers the identity metrics with the default registry. Call it once
// per process.
func New() *Metrics {
	return &Metrics{
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_identity_resolutions_total",
			Help: "Athlete name resolutions by match method",
		}, []string{"method"}),

		AttachRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_identity_attach_rows_total",
			Help: "Attach rows by source system and outcome",
		}, []string{"source_system", "outcome"}),

		AttachDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roster_identity_attach_duration_seconds",
			Help:    "Duration of one attach batch",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"source_system"}),

		MergeOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_identity_merges_total",
			Help: "Duplicate merge attempts by status",
		}, []string{"status"}),

		DuplicateCandidates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roster_identity_duplicate_candidates_total",
			Help: "Duplicate candidate pairs found by detection runs",
		}),

		FlagRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_identity_flag_refreshes_total",
			Help: "Domain flag recomputations by source system",
		}, []string{"source_system"}),
	}
}

func (m *Metrics) IncrementResolution(method string) {
	if m != nil {
		m.Resolutions.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) AddAttachRows(system, outcome string, n int) {
	if m != nil && n > 0 {
		m.AttachRows.WithLabelValues(system, outcome).Add(float64(n))
	}
}

func (m *Metrics) ObserveAttachDuration(system string, d time.Duration) {
	if m != nil {
		m.AttachDuration.WithLabelValues(system).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementMerge(status string) {
	if m != nil {
		m.MergeOutcomes.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) AddDuplicateCandidates(n int) {
	if m != nil && n > 0 {
		m.DuplicateCandidates.Add(float64(n))
	}
}

func (m *Metrics) IncrementFlagRefresh(system string) {
	if m != nil {
		m.FlagRefreshes.WithLabelValues(system).Inc()
	}
}
