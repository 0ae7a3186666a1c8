package metrics

import "time"

// IngestMetrics receives observations from the upload lifecycle.
// Implementations must be nil-safe: the service calls through possibly-nil
// interfaces guarded at each call site.
type IngestMetrics interface {
	// RecordInit counts upload session initializations.
	RecordInit(err error)

	// RecordComplete counts finalizations with their total latency.
	RecordComplete(duration time.Duration, err error)

	// RecordDedup counts completes that resolved to an existing artifact.
	RecordDedup()

	// RecordPin counts secondary-replica pin attempts.
	RecordPin(err error)

	// RecordDownload counts retrieval redirects.
	RecordDownload(err error)

	// ObserveHash records the latency and size of a payload hash pass.
	ObserveHash(duration time.Duration, bytes int64)
}
