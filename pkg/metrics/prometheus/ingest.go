// Package prometheus provides the Prometheus-backed implementations of
// the metrics interfaces.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/carbonledger/evidenced/pkg/metrics"
)

// ingestMetrics is the Prometheus implementation of metrics.IngestMetrics.
type ingestMetrics struct {
	initsTotal       *prometheus.CounterVec
	completesTotal   *prometheus.CounterVec
	completeDuration prometheus.Histogram
	dedupsTotal      prometheus.Counter
	pinsTotal        *prometheus.CounterVec
	downloadsTotal   *prometheus.CounterVec
	hashDuration     prometheus.Histogram
	hashBytes        prometheus.Histogram
}

// NewIngestMetrics creates a Prometheus-backed IngestMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewIngestMetrics() metrics.IngestMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &ingestMetrics{
		initsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "evidenced_upload_inits_total",
				Help: "Total number of upload session initializations by status",
			},
			[]string{"status"},
		),
		completesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "evidenced_upload_completes_total",
				Help: "Total number of upload finalizations by status",
			},
			[]string{"status"},
		),
		completeDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "evidenced_upload_complete_duration_milliseconds",
				Help: "Duration of upload finalization in milliseconds",
				Buckets: []float64{
					50,    // 50ms - small payloads, warm store
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s - large payloads
					15000, // 15s
					60000, // 60s - pin included on slow replicas
				},
			},
		),
		dedupsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "evidenced_upload_dedups_total",
				Help: "Total number of completes that resolved to an existing artifact",
			},
		),
		pinsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "evidenced_replica_pins_total",
				Help: "Total number of secondary-replica pin attempts by status",
			},
			[]string{"status"},
		),
		downloadsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "evidenced_downloads_total",
				Help: "Total number of artifact download redirects by status",
			},
			[]string{"status"},
		),
		hashDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "evidenced_hash_duration_milliseconds",
				Help: "Duration of payload hash passes in milliseconds",
				Buckets: []float64{
					1,    // 1ms - tiny payloads
					10,   // 10ms
					50,   // 50ms
					100,  // 100ms
					500,  // 500ms
					1000, // 1s - payloads near the size cap
					5000, // 5s
				},
			},
		),
		hashBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "evidenced_hash_bytes",
				Help: "Distribution of hashed payload sizes",
				Buckets: []float64{
					4096,     // 4KB
					65536,    // 64KB
					1048576,  // 1MB
					10485760, // 10MB
					52428800, // 50MB - default upload cap
				},
			},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *ingestMetrics) RecordInit(err error) {
	if m == nil {
		return
	}
	m.initsTotal.WithLabelValues(status(err)).Inc()
}

func (m *ingestMetrics) RecordComplete(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.completesTotal.WithLabelValues(status(err)).Inc()
	m.completeDuration.Observe(duration.Seconds() * 1000)
}

func (m *ingestMetrics) RecordDedup() {
	if m == nil {
		return
	}
	m.dedupsTotal.Inc()
}

func (m *ingestMetrics) RecordPin(err error) {
	if m == nil {
		return
	}
	m.pinsTotal.WithLabelValues(status(err)).Inc()
}

func (m *ingestMetrics) RecordDownload(err error) {
	if m == nil {
		return
	}
	m.downloadsTotal.WithLabelValues(status(err)).Inc()
}

func (m *ingestMetrics) ObserveHash(duration time.Duration, bytes int64) {
	if m == nil {
		return
	}
	m.hashDuration.Observe(duration.Seconds() * 1000)
	if bytes > 0 {
		m.hashBytes.Observe(float64(bytes))
	}
}
