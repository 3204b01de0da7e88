// Package metrics provides Prometheus metrics for versioning activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jerome/simply-versioned/internal/versioning"
)

// DefaultNamespace prefixes every metric name when none is configured.
const DefaultNamespace = "simply_versioned"

// Metrics implements versioning.Recorder with Prometheus collectors.
type Metrics struct {
	VersionsCreatedTotal   *prometheus.CounterVec
	AppendAttempts         *prometheus.HistogramVec
	AppendConflictsTotal   *prometheus.CounterVec
	VersionsTrimmedTotal   *prometheus.CounterVec
	HookFailuresTotal      *prometheus.CounterVec
	CaptureDurationSeconds *prometheus.HistogramVec
}

var _ versioning.Recorder = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	m := &Metrics{}

	m.VersionsCreatedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versions_created_total",
			Help:      "Total number of versions appended",
		},
		[]string{"owner_type"},
	)

	m.AppendAttempts = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "append_attempts",
			Help:      "Number of append attempts needed per created version",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"owner_type"},
	)

	m.AppendConflictsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "append_conflicts_total",
			Help:      "Total number of appends that lost the race for a version number",
		},
		[]string{"owner_type"},
	)

	m.VersionsTrimmedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versions_trimmed_total",
			Help:      "Total number of versions deleted by retention trimming",
		},
		[]string{"owner_type"},
	)

	m.HookFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_failures_total",
			Help:      "Total number of versioning failures by lifecycle hook",
		},
		[]string{"owner_type", "hook"},
	)

	m.CaptureDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Duration of version capture, number allocation and append, in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"owner_type"},
	)

	return m
}

func (m *Metrics) VersionCreated(ownerType string, attempts int) {
	m.VersionsCreatedTotal.WithLabelValues(ownerType).Inc()
	m.AppendAttempts.WithLabelValues(ownerType).Observe(float64(attempts))
}

func (m *Metrics) VersionsTrimmed(ownerType string, n int64) {
	m.VersionsTrimmedTotal.WithLabelValues(ownerType).Add(float64(n))
}

func (m *Metrics) AppendConflict(ownerType string) {
	m.AppendConflictsTotal.WithLabelValues(ownerType).Inc()
}

func (m *Metrics) HookFailed(ownerType string, hook string) {
	m.HookFailuresTotal.WithLabelValues(ownerType, hook).Inc()
}

func (m *Metrics) CaptureDuration(ownerType string, d time.Duration) {
	m.CaptureDurationSeconds.WithLabelValues(ownerType).Observe(d.Seconds())
}
