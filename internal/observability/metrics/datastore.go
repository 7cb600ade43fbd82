package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for fit archive operations.
type DatastoreMetrics struct {
	registry *prometheus.Registry

	archiveOps     *prometheus.CounterVec
	archiveLatency *prometheus.HistogramVec
	archiveErrors  *prometheus.CounterVec
	archivedFits   prometheus.Gauge

	collectors []prometheus.Collector
}

// NewDatastoreMetrics creates and registers new datastore metrics.
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() error {
	m.archiveOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nmix_archive_operations_total",
			Help: "Total number of archive database operations",
		},
		[]string{"operation", "table", "status"},
	)

	m.archiveLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nmix_archive_operation_duration_seconds",
			Help:    "Time taken for archive database operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		},
		[]string{"operation", "table"},
	)

	m.archiveErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nmix_archive_operation_errors_total",
			Help: "Total number of archive database errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	m.archivedFits = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nmix_archive_fits",
		Help: "Number of fits stored in the archive",
	})

	m.collectors = []prometheus.Collector{
		m.archiveOps,
		m.archiveLatency,
		m.archiveErrors,
		m.archivedFits,
	}
	return nil
}

// Describe implements prometheus.Collector.
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// SetArchivedFits updates the number of stored fits.
func (m *DatastoreMetrics) SetArchivedFits(n int64) {
	m.archivedFits.Set(float64(n))
}

// splitOperation splits "operation:table".
func splitOperation(operation string) (op, table string) {
	op, table, ok := strings.Cut(operation, ":")
	if !ok || table == "" {
		return operation, "fits"
	}
	return op, table
}

// RecordOperation counts one archive operation by status.
// Use "operation:table" (e.g. "archive_save:fit_runs") to label the table.
func (m *DatastoreMetrics) RecordOperation(operation, status string) {
	op, table := splitOperation(operation)
	m.archiveOps.WithLabelValues(op, table, status).Inc()
}

// RecordDuration observes the latency of one archive operation.
func (m *DatastoreMetrics) RecordDuration(operation string, seconds float64) {
	op, table := splitOperation(operation)
	m.archiveLatency.WithLabelValues(op, table).Observe(seconds)
}

// RecordError counts a failed archive operation by category.
func (m *DatastoreMetrics) RecordError(operation, errorType string) {
	op, table := splitOperation(operation)
	m.archiveErrors.WithLabelValues(op, table, errorType).Inc()
	m.archiveOps.WithLabelValues(op, table, StatusError).Inc()
}
