package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors owned by the pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// queriesTotal counts finished runs by outcome.
	queriesTotal *prometheus.CounterVec

	// durationSeconds records end-to-end run latency by outcome.
	durationSeconds *prometheus.HistogramVec

	// degradedTotal counts absorbed stage failures: catalog, intent,
	// embedding, retrieval or synthesis.
	degradedTotal *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitrep",
			Subsystem: "query",
			Name:      "total",
			Help:      "Total number of pipeline runs, partitioned by outcome.",
		}, []string{"outcome"}),

		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sitrep",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of pipeline runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),

		degradedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitrep",
			Subsystem: "pipeline",
			Name:      "degraded_total",
			Help:      "Stage failures absorbed by the pipeline, partitioned by stage.",
		}, []string{"stage"}),
	}
}

func (m *Metrics) observe(res *Result) {
	if m == nil {
		return
	}
	outcome := string(res.Outcome)
	m.queriesTotal.WithLabelValues(outcome).Inc()
	m.durationSeconds.WithLabelValues(outcome).Observe(res.Duration.Seconds())
}

func (m *Metrics) degraded(stage string) {
	if m == nil {
		return
	}
	m.degradedTotal.WithLabelValues(stage).Inc()
}
