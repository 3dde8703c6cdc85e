package interop

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records run outcomes on a private prometheus registry so they can
// be written out in node-exporter textfile format after the run.
type Metrics struct {
	registry *prometheus.Registry
	results  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	exitCode *prometheus.GaugeVec
}

// NewMetrics creates and registers the run metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "interop",
			Name:      "results_total",
			Help:      "Browser attempt outcomes by scenario, browser and status.",
		}, []string{"scenario", "browser", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "interop",
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of one browser attempt from launch to teardown.",
			Buckets:   []float64{1, 2, 5, 10, 15, 30, 45, 60, 90},
		}, []string{"scenario", "browser"}),
		exitCode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "interop",
			Name:      "run_exit_code",
			Help:      "Exit code of the last run of a scenario.",
		}, []string{"scenario"}),
	}
	m.registry.MustRegister(m.results, m.duration, m.exitCode)
	return m
}

// ObserveResult records one browser outcome. Skipped results have no
// duration and are only counted.
func (m *Metrics) ObserveResult(scenario string, r Result) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(scenario, r.Browser, r.Status.Label()).Inc()
	if !r.Skipped() {
		m.duration.WithLabelValues(scenario, r.Browser).Observe(r.Duration.Seconds())
	}
}

// ObserveSummary records the run verdict.
func (m *Metrics) ObserveSummary(scenario string, s Summary) {
	if m == nil {
		return
	}
	m.exitCode.WithLabelValues(scenario).Set(float64(s.ExitCode))
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes all metrics to path in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
