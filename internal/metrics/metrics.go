// Package metrics provides the Prometheus collectors of the listings service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace is the namespace for all listings metrics.
	MetricsNamespace = "listings"
)

// Sync results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDropped = "dropped"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Reclassifier
	ReclassifyRuns       *prometheus.CounterVec
	ReclassifyPassErrors *prometheus.CounterVec
	ReclassifyUpdated    *prometheus.CounterVec
	ReclassifyConflicts  *prometheus.CounterVec
	ReclassifyDuration   prometheus.Histogram

	// Synchronizer
	SyncOperations *prometheus.CounterVec
	SyncQueueDepth prometheus.Gauge

	// Read path
	SearchDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initReclassifyMetrics(factory)
	m.initSyncMetrics(factory)

	m.SearchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Duration of listing searches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode", "result"},
	)

	return m
}

func (m *Metrics) initReclassifyMetrics(factory promauto.Factory) {
	m.ReclassifyRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "reclassify",
			Name:      "runs_total",
			Help:      "Total number of reclassify runs by outcome",
		},
		[]string{"outcome"},
	)

	m.ReclassifyPassErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "reclassify",
			Name:      "pass_errors_total",
			Help:      "Total number of failed reclassify passes",
		},
		[]string{"group"},
	)

	m.ReclassifyUpdated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "reclassify",
			Name:      "documents_updated_total",
			Help:      "Total number of documents whose stored group was rewritten",
		},
		[]string{"group"},
	)

	m.ReclassifyConflicts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "reclassify",
			Name:      "version_conflicts_total",
			Help:      "Total number of documents skipped on version conflict",
		},
		[]string{"group"},
	)

	m.ReclassifyDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "reclassify",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full reclassify run in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
}

func (m *Metrics) initSyncMetrics(factory promauto.Factory) {
	m.SyncOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "sync",
			Name:      "operations_total",
			Help:      "Total number of index synchronization operations",
		},
		[]string{"op", "result"},
	)

	m.SyncQueueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: "sync",
			Name:      "queue_depth",
			Help:      "Number of change events waiting for a worker",
		},
	)
}

// RunFinished records one reclassify run.
func (m *Metrics) RunFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ReclassifyRuns.WithLabelValues(outcome).Inc()
	m.ReclassifyDuration.Observe(d.Seconds())
}

// PassFinished records the counters of a successful pass.
func (m *Metrics) PassFinished(group string, updated, conflicts int64) {
	if m == nil {
		return
	}
	m.ReclassifyUpdated.WithLabelValues(group).Add(float64(updated))
	m.ReclassifyConflicts.WithLabelValues(group).Add(float64(conflicts))
}

// PassFailed records a failed pass.
func (m *Metrics) PassFailed(group string) {
	if m == nil {
		return
	}
	m.ReclassifyPassErrors.WithLabelValues(group).Inc()
}

// SyncOperation records one synchronizer outcome.
func (m *Metrics) SyncOperation(op, result string) {
	if m == nil {
		return
	}
	m.SyncOperations.WithLabelValues(op, result).Inc()
}

// QueueDepth records the synchronizer backlog.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.SyncQueueDepth.Set(float64(n))
}

// SearchObserved records one search.
func (m *Metrics) SearchObserved(mode, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchDuration.WithLabelValues(mode, result).Observe(d.Seconds())
}
