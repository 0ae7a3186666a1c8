package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so the ingestion
// pipeline can be traced end to end (init -> upload -> complete -> pin).
const (
	// Request scope
	KeyRequestID = "request_id" // HTTP request ID from chi middleware
	KeyAppKey    = "app_key"    // authenticated calling application
	KeyClientIP  = "client_ip"  // client IP address

	// Upload lifecycle
	KeyUploadID   = "upload_id"   // upload session identifier
	KeyArtifactID = "artifact_id" // artifact identifier
	KeyDigest     = "sha256"      // lowercase hex SHA-256
	KeyBucketKey  = "bucket_key"  // object store key
	KeyFilename   = "filename"    // sanitized display name
	KeySize       = "size_bytes"  // payload size in bytes
	KeyMime       = "mime"        // declared MIME type
	KeyCID        = "cid"         // secondary replica content identifier

	// Storage backend
	KeyBucket     = "bucket"      // S3 bucket name
	KeyStoreType  = "store_type"  // s3, local
	KeyAttempt    = "attempt"     // retry attempt number
	KeyMaxRetries = "max_retries" // maximum retry attempts

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyStatus     = "status"
	KeyOperation  = "operation"
)

// Field constructors for type safety.

// RequestID returns a slog.Attr for the HTTP request ID
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// AppKey returns a slog.Attr for the authenticated application key
func AppKey(key string) slog.Attr {
	return slog.String(KeyAppKey, key)
}

// UploadID returns a slog.Attr for an upload session ID
func UploadID(id string) slog.Attr {
	return slog.String(KeyUploadID, id)
}

// ArtifactID returns a slog.Attr for an artifact ID
func ArtifactID(id string) slog.Attr {
	return slog.String(KeyArtifactID, id)
}

// Digest returns a slog.Attr for a SHA-256 digest
func Digest(d string) slog.Attr {
	return slog.String(KeyDigest, d)
}

// BucketKey returns a slog.Attr for an object store key
func BucketKey(k string) slog.Attr {
	return slog.String(KeyBucketKey, k)
}

// Size returns a slog.Attr for a byte count
func Size(n int64) slog.Attr {
	return slog.Int64(KeySize, n)
}

// CID returns a slog.Attr for a replica content identifier
func CID(c string) slog.Attr {
	return slog.String(KeyCID, c)
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// String returns a slog.Attr for an arbitrary string field
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Int returns a slog.Attr for an arbitrary integer field
func Int(key string, value int) slog.Attr {
	return slog.Int(key, value)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
