package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics records per-unit ingestion outcomes and whole-job durations.
type IngestMetrics struct {
	unitsProcessed *prometheus.CounterVec
	unitsFailed    *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
}

// NewIngestMetrics registers the ingestion metrics on the provided registerer.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	if reg == nil {
		return &IngestMetrics{}
	}
	unitsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_units_processed",
		Help: "Evidence units successfully described, embedded and stored.",
	}, []string{"modality"})
	unitsFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_units_failed",
		Help: "Evidence units skipped after exhausting retries.",
	}, []string{"modality"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_job_duration_seconds",
		Help:    "Duration of ingestion jobs in seconds.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"outcome"})
	reg.MustRegister(unitsProcessed, unitsFailed, jobDuration)
	return &IngestMetrics{
		unitsProcessed: unitsProcessed,
		unitsFailed:    unitsFailed,
		jobDuration:    jobDuration,
	}
}

// IncProcessed increments the processed counter for the given modality.
func (m *IngestMetrics) IncProcessed(modality string) {
	if m == nil || m.unitsProcessed == nil {
		return
	}
	m.unitsProcessed.WithLabelValues(normalizeLabel(modality)).Inc()
}

// IncFailed increments the failed counter for the given modality.
func (m *IngestMetrics) IncFailed(modality string) {
	if m == nil || m.unitsFailed == nil {
		return
	}
	m.unitsFailed.WithLabelValues(normalizeLabel(modality)).Inc()
}

// ObserveJobDuration records how long a whole ingestion job took.
func (m *IngestMetrics) ObserveJobDuration(outcome string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// ModelCallMetrics records latency and failures per model collaborator.
type ModelCallMetrics struct {
	duration *prometheus.HistogramVec
	failure  *prometheus.CounterVec
}

// NewModelCallMetrics registers the model-call metrics on the provided registerer.
func NewModelCallMetrics(reg prometheus.Registerer) *ModelCallMetrics {
	if reg == nil {
		return &ModelCallMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "model_call_duration_seconds",
		Help:    "Duration of model collaborator calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"collaborator"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "model_call_failure",
		Help: "Failed model collaborator calls.",
	}, []string{"collaborator"})
	reg.MustRegister(duration, failure)
	return &ModelCallMetrics{duration: duration, failure: failure}
}

// ObserveDuration records the latency of a call to the named collaborator.
func (m *ModelCallMetrics) ObserveDuration(collaborator string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(collaborator)).Observe(duration.Seconds())
}

// IncFailure increments the failure counter for the named collaborator.
func (m *ModelCallMetrics) IncFailure(collaborator string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(collaborator)).Inc()
}

// SearchMetrics records retrieval latency and result counts.
type SearchMetrics struct {
	duration *prometheus.HistogramVec
	results  *prometheus.HistogramVec
}

// NewSearchMetrics registers the search metrics on the provided registerer.
func NewSearchMetrics(reg prometheus.Registerer) *SearchMetrics {
	if reg == nil {
		return &SearchMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "search_duration_seconds",
		Help:    "Duration of semantic searches in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"scope"})
	results := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "search_results",
		Help:    "Result counts returned after temporal deduplication.",
		Buckets: prometheus.LinearBuckets(0, 2, 11),
	}, []string{"scope"})
	reg.MustRegister(duration, results)
	return &SearchMetrics{duration: duration, results: results}
}

// ObserveSearch records one search with its latency and final result count.
func (m *SearchMetrics) ObserveSearch(scope string, duration time.Duration, resultCount int) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(scope)).Observe(duration.Seconds())
	m.results.WithLabelValues(normalizeLabel(scope)).Observe(float64(resultCount))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
