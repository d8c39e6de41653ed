package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks CLI command runs.
type Metrics struct {
	Runs        *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
}

// New creates and registers the run metrics. Call it once per process.
func New() *Metrics {
	return &Metrics{
		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_command_runs_total",
			Help: "Total number of roster command runs by command and result",
		}, []string{"command", "result"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roster_command_duration_seconds",
			Help:    "Duration of roster command runs",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"command"}),
	}
}

// ObserveRun records one finished command.
func (m *Metrics) ObserveRun(command string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Runs.WithLabelValues(command, result).Inc()
	m.RunDuration.WithLabelValues(command).Observe(d.Seconds())
}
