// Package metrics provides Prometheus collectors for the screening API.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the service exposes. All methods are safe on a
// nil receiver so callers can run without metrics.
type Metrics struct {
	AnalysesTotal      *prometheus.CounterVec
	InferenceDuration  prometheus.Histogram
	InferenceErrors    prometheus.Counter
	StorageErrors      *prometheus.CounterVec
	VulnerabilityTiers *prometheus.CounterVec
	AuthEvents         *prometheus.CounterVec
}

// New creates the collectors and registers them on registry.
func New(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		AnalysesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pneumoscan_analyses_total",
				Help: "Completed X-ray analyses partitioned by diagnosis and whether the caller was authenticated.",
			},
			[]string{"diagnosis", "authenticated"},
		),
		InferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pneumoscan_inference_duration_seconds",
				Help:    "Time taken by the classifier for one image.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
			},
		),
		InferenceErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pneumoscan_inference_errors_total",
				Help: "Classifier invocations that returned an error.",
			},
		),
		StorageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pneumoscan_storage_errors_total",
				Help: "Blob and database failures during analysis partitioned by operation.",
			},
			[]string{"operation"},
		),
		VulnerabilityTiers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pneumoscan_vulnerability_tier_total",
				Help: "Vulnerability tiers attached to persisted analyses.",
			},
			[]string{"tier"},
		),
		AuthEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pneumoscan_auth_events_total",
				Help: "Authentication events partitioned by event and outcome.",
			},
			[]string{"event", "outcome"},
		),
	}

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return m, nil
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.AnalysesTotal.Describe(ch)
	m.InferenceDuration.Describe(ch)
	m.InferenceErrors.Describe(ch)
	m.StorageErrors.Describe(ch)
	m.VulnerabilityTiers.Describe(ch)
	m.AuthEvents.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.AnalysesTotal.Collect(ch)
	m.InferenceDuration.Collect(ch)
	m.InferenceErrors.Collect(ch)
	m.StorageErrors.Collect(ch)
	m.VulnerabilityTiers.Collect(ch)
	m.AuthEvents.Collect(ch)
}

func (m *Metrics) ObserveInference(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.InferenceDuration.Observe(d.Seconds())
	if err != nil {
		m.InferenceErrors.Inc()
	}
}

func (m *Metrics) RecordAnalysis(diagnosis string, authenticated bool) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(diagnosis, fmt.Sprint(authenticated)).Inc()
}

func (m *Metrics) RecordStorageError(operation string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordTier(tier string) {
	if m == nil {
		return
	}
	m.VulnerabilityTiers.WithLabelValues(tier).Inc()
}

func (m *Metrics) RecordAuth(event, outcome string) {
	if m == nil {
		return
	}
	m.AuthEvents.WithLabelValues(event, outcome).Inc()
}
