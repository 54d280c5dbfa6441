package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the watchpost service
type Metrics struct {
	RecordsProcessedTotal *prometheus.CounterVec
	RecordsInvalidTotal   *prometheus.CounterVec
	RulesEvaluatedTotal   prometheus.Counter
	FindingsTotal         *prometheus.CounterVec
	SampleDuration        prometheus.Histogram
	SessionsActive        prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all collectors registered
func NewMetrics() *Metrics {
	return &Metrics{
		RecordsProcessedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "watchpost_records_processed_total",
			Help: "Total number of records folded into aggregates, by pipeline",
		}, []string{"pipeline"}),
		RecordsInvalidTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "watchpost_records_invalid_total",
			Help: "Total number of malformed records dropped, by pipeline",
		}, []string{"pipeline"}),
		RulesEvaluatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "watchpost_rules_evaluated_total",
			Help: "Total number of rule evaluations performed",
		}),
		FindingsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "watchpost_findings_total",
			Help: "Total number of findings generated, by severity",
		}, []string{"severity"}),
		SampleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "watchpost_sample_duration_seconds",
			Help:    "Time spent acquiring one state snapshot from the source adapter",
			Buckets: prometheus.DefBuckets,
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "watchpost_sessions_active",
			Help: "Number of observation sessions currently running",
		}),
	}
}

// IncRecordsProcessed increments the processed-record counter for a pipeline
func (m *Metrics) IncRecordsProcessed(pipeline string) {
	m.RecordsProcessedTotal.WithLabelValues(pipeline).Inc()
}

// IncRecordsInvalid increments the invalid-record counter for a pipeline
func (m *Metrics) IncRecordsInvalid(pipeline string) {
	m.RecordsInvalidTotal.WithLabelValues(pipeline).Inc()
}

// IncRulesEvaluated increments the rule-evaluation counter
func (m *Metrics) IncRulesEvaluated() {
	m.RulesEvaluatedTotal.Inc()
}

// IncFindings increments the finding counter for a severity
func (m *Metrics) IncFindings(severity string) {
	m.FindingsTotal.WithLabelValues(severity).Inc()
}

// ObserveSampleDuration records the duration of one source sample call
func (m *Metrics) ObserveSampleDuration(seconds float64) {
	m.SampleDuration.Observe(seconds)
}
