package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the Prometheus counters and histograms for the update
// pipeline. The binary is a batch job, so metrics live in their own registry
// and are pushed to a Pushgateway at the end of a run instead of being
// scraped.
type Metrics struct {
	registry *prometheus.Registry

	ChunksFetched *prometheus.CounterVec // labels: provider
	ChunkFailures *prometheus.CounterVec // labels: provider
	RowsMerged    *prometheus.CounterVec // labels: provider
	RunDuration   *prometheus.HistogramVec
	RunsTotal     *prometheus.CounterVec // labels: provider, outcome={updated,nothing_to_do,failed}
}

// NewMetrics creates all pipeline metrics in a fresh registry. A fresh
// registry per call keeps tests free of "already registered" panics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ChunksFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "chunks_fetched_total",
			Help:      "Fetch windows successfully fetched and parsed.",
		}, []string{"provider"}),
		ChunkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "chunk_failures_total",
			Help:      "Fetch windows skipped due to transient failures.",
		}, []string{"provider"}),
		RowsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "rows_merged_total",
			Help:      "New rows added to a provider store.",
		}, []string{"provider"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weather_etl",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete provider update run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"provider"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "runs_total",
			Help:      "Provider runs by outcome.",
		}, []string{"provider", "outcome"}),
	}

	m.registry.MustRegister(
		m.ChunksFetched,
		m.ChunkFailures,
		m.RowsMerged,
		m.RunDuration,
		m.RunsTotal,
	)
	return m
}

// Push sends the registry to a Pushgateway under the given job name.
func (m *Metrics) Push(url, job string) error {
	return push.New(url, job).Gatherer(m.registry).Push()
}
