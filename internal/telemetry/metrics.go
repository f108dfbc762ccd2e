package telemetry

import (
	"github.com/RyanBlaney/magictales/emotion"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the prometheus collectors for the analysis pipeline.
type Metrics struct {
	Registry *prometheus.Registry

	Analyses *prometheus.CounterVec
	Errors   *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics registers the pipeline collectors, plus the Go and process
// collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "magictales_analyses_total",
			Help: "Completed emotion analyses by classifier variant and label.",
		}, []string{"variant", "label"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "magictales_analysis_errors_total",
			Help: "Failed analysis stages.",
		}, []string{"stage"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "magictales_analysis_duration_seconds",
			Help:    "Time from upload to label, by input format.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"format"}),
	}

	m.Registry.MustRegister(
		m.Analyses,
		m.Errors,
		m.Duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveAnalysis(a *emotion.Analysis) {
	m.Analyses.WithLabelValues(a.Variant, string(a.Label)).Inc()
	m.Duration.WithLabelValues(a.Format).Observe(a.Elapsed.Seconds())
}

func (m *Metrics) ObserveError(stage string) {
	m.Errors.WithLabelValues(stage).Inc()
}
