package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/carbonledger/evidenced/pkg/blobstore"
	"github.com/carbonledger/evidenced/pkg/metrics"
)

// blobstoreMetrics is the Prometheus implementation of blobstore.Metrics.
type blobstoreMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewBlobstoreMetrics creates a Prometheus-backed blobstore.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBlobstoreMetrics(driver string) blobstore.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &blobstoreMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "evidenced_objectstore_operations_total",
				Help:        "Total number of object store operations by operation and status",
				ConstLabels: prometheus.Labels{"driver": driver},
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "evidenced_objectstore_operation_duration_milliseconds",
				Help:        "Duration of object store operations in milliseconds",
				ConstLabels: prometheus.Labels{"driver": driver},
				Buckets: []float64{
					10,    // 10ms - metadata operations
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s - medium objects
					5000,  // 5s - large objects
					30000, // 30s
				},
			},
			[]string{"operation"},
		),
	}
}

func (m *blobstoreMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
}
