package executor

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the Prometheus projection of case outcomes (§4.D "Metrics").
// It is a convenience export for the optional status server, never the
// source of truth — that's metrics_summary.json, built independently by
// durability.BuildSummary from the same results.
type Metrics struct {
	casesTotal   *prometheus.CounterVec
	caseDuration *prometheus.HistogramVec
}

// NewMetrics registers the counter/histogram pair on reg. Pass nil to get a
// Metrics that records nothing (the default for CLI/batch runs without a
// status server).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		casesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memorybench_cases_total",
			Help: "Total benchmark cases dispatched, by provider, benchmark, and outcome status.",
		}, []string{"provider", "benchmark", "status"}),
		caseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memorybench_case_duration_seconds",
			Help:    "Wall-clock duration of a single case invocation, including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "benchmark"}),
	}
	reg.MustRegister(m.casesTotal, m.caseDuration)
	return m
}

func (m *Metrics) observe(providerName, benchmarkName, status string, durationMs int64) {
	if m == nil {
		return
	}
	m.casesTotal.WithLabelValues(providerName, benchmarkName, status).Inc()
	m.caseDuration.WithLabelValues(providerName, benchmarkName).Observe(float64(durationMs) / 1000.0)
}
