package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce              sync.Once
	httpRequestsTotal         *prometheus.CounterVec
	httpLatencySeconds        *prometheus.HistogramVec
	httpErrorsTotal           *prometheus.CounterVec
	evaluationSubmissions     *prometheus.CounterVec
	scoringDurationSeconds    prometheus.Histogram
	integrityWarningsTotal    *prometheus.CounterVec
	evaluationEventsPublished *prometheus.CounterVec
	streamSubscribers         prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		evaluationSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluation_submissions_total",
			Help: "Evaluation submissions by outcome: created, regraded, rejected or failed.",
		}, []string{"category_type", "outcome"})

		scoringDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "evaluation_scoring_duration_seconds",
			Help:    "Time spent computing an evaluation from raw deductions.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		})

		integrityWarningsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluation_integrity_warnings_total",
			Help: "Template references that could not be resolved while grading.",
		}, []string{"kind"})

		evaluationEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluation_events_published_total",
			Help: "Evaluation events published to the broker.",
		}, []string{"transport"})

		streamSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evaluation_stream_subscribers",
			Help: "Live evaluation feed subscribers connected to this instance.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			evaluationSubmissions,
			scoringDurationSeconds,
			integrityWarningsTotal,
			evaluationEventsPublished,
			streamSubscribers,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// EvaluationSubmissions exposes the submission outcome counter.
func EvaluationSubmissions() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationSubmissions
}

// ScoringDuration exposes the scoring latency histogram.
func ScoringDuration() prometheus.Histogram {
	RegisterMetrics()
	return scoringDurationSeconds
}

// IntegrityWarnings exposes the counter for unresolved template references.
func IntegrityWarnings() *prometheus.CounterVec {
	RegisterMetrics()
	return integrityWarningsTotal
}

// EvaluationEventsPublished exposes the broker publish counter.
func EvaluationEventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationEventsPublished
}

// StreamSubscribers exposes the gauge of live feed subscribers.
func StreamSubscribers() prometheus.Gauge {
	RegisterMetrics()
	return streamSubscribers
}
