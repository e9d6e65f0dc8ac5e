package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation outcomes used as the "outcome" label.
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Metrics contains all Prometheus metrics for the comment thread store.
// Metrics are organized by subsystem: repository operations, subscriber
// mutations and thread events.
type Metrics struct {
	// ThreadOperations counts repository calls, labeled by operation, backend and outcome.
	ThreadOperations *prometheus.CounterVec

	// ThreadOperationDuration observes repository call duration in seconds, labeled by operation and backend.
	ThreadOperationDuration *prometheus.HistogramVec

	// SaveAllBatchSize observes the number of threads passed to SaveAll.
	SaveAllBatchSize prometheus.Histogram

	// SubscribersAdded counts subscriber ids requested for addition, labeled by backend.
	// Ids already present are counted too; the store does not report how many were new.
	SubscribersAdded *prometheus.CounterVec

	// EventsPublished counts thread events handed to the publisher, labeled by event type and outcome.
	EventsPublished *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with the default
// Prometheus registry. The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance registered with reg.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ThreadOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "threads",
			Name:      "operations_total",
			Help:      "Total number of thread repository operations",
		}, []string{"operation", "backend", "outcome"}),
		ThreadOperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "threads",
			Name:      "operation_duration_seconds",
			Help:      "Duration of thread repository operations in seconds",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation", "backend"}),
		SaveAllBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "threads",
			Name:      "save_all_batch_size",
			Help:      "Number of threads per SaveAll call",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		SubscribersAdded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "threads",
			Name:      "subscribers_added_total",
			Help:      "Total number of subscriber ids passed to successful subscriber additions",
		}, []string{"backend"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of thread events published",
		}, []string{"event_type", "outcome"}),
	}
}

// RecordOperation records a completed repository operation.
func (m *Metrics) RecordOperation(operation, backend, outcome string, durationSeconds float64) {
	m.ThreadOperations.WithLabelValues(operation, backend, outcome).Inc()
	m.ThreadOperationDuration.WithLabelValues(operation, backend).Observe(durationSeconds)
}

// RecordSaveAllBatch records the size of a SaveAll call.
func (m *Metrics) RecordSaveAllBatch(size int) {
	m.SaveAllBatchSize.Observe(float64(size))
}

// RecordSubscribersAdded records subscriber ids added to a thread.
func (m *Metrics) RecordSubscribersAdded(backend string, count int) {
	m.SubscribersAdded.WithLabelValues(backend).Add(float64(count))
}

// RecordEventPublished records the outcome of publishing a thread event.
func (m *Metrics) RecordEventPublished(eventType, outcome string) {
	m.EventsPublished.WithLabelValues(eventType, outcome).Inc()
}
