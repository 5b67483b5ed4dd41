// Package metrics provides Prometheus metrics for a culling batch.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache names
const (
	CacheSignature = "signature"
	CacheEmbedding = "embedding"
)

// Lookup results
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Metrics holds every collector of a batch run. A nil *Metrics is valid and
// records nothing, so components can be used without instrumentation.
type Metrics struct {
	CacheLookups       *prometheus.CounterVec
	Photos             *prometheus.CounterVec
	ExtractionFailures prometheus.Counter
	SidecarWrites      *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	registry           *prometheus.Registry
}

// New creates the collectors and registers them on a private registry
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "photocull_cache_lookups_total",
		Help: "Cache lookups by cache and result.",
	}, []string{"cache", "result"})

	m.Photos = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "photocull_photos_scored_total",
		Help: "Scored photos by outcome.",
	}, []string{"outcome"})

	m.ExtractionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "photocull_extraction_failures_total",
		Help: "Photos that received a zero embedding.",
	})

	m.SidecarWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "photocull_sidecar_writes_total",
		Help: "Sidecar write attempts by result.",
	}, []string{"result"})

	m.StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "photocull_stage_duration_seconds",
		Help:    "Wall time of each pipeline stage.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})

	for _, c := range []prometheus.Collector{m.CacheLookups, m.Photos, m.ExtractionFailures, m.SidecarWrites, m.StageDuration} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// Registry exposes the registry backing m
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// CacheLookup counts one lookup against cache with the given result
func (m *Metrics) CacheLookup(cache, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// PhotoScored counts a scored photo by outcome: usable, unusable or failed
func (m *Metrics) PhotoScored(outcome string) {
	if m == nil {
		return
	}
	m.Photos.WithLabelValues(outcome).Inc()
}

// ExtractionFailed counts photos that fell back to a zero vector
func (m *Metrics) ExtractionFailed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ExtractionFailures.Add(float64(n))
}

// SidecarWrite counts a sidecar write by result
func (m *Metrics) SidecarWrite(result string) {
	if m == nil {
		return
	}
	m.SidecarWrites.WithLabelValues(result).Inc()
}

// ObserveStage records the time elapsed since start for stage
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// WriteTextfile writes all metrics in the Prometheus text exposition format,
// suitable for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
