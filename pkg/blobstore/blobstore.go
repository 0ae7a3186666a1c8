// Package blobstore defines the object storage port used by the evidence
// service. Payload bytes live under content-addressed keys; implementations
// exist for S3-compatible object stores and the local filesystem.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when no object exists under the requested key.
var ErrNotFound = errors.New("object not found")

// PresignOp selects the HTTP method a presigned URL authorizes.
type PresignOp string

const (
	PresignPut PresignOp = "PUT"
	PresignGet PresignOp = "GET"
)

// ObjectInfo describes a stored object without its payload.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Metrics receives per-operation latency observations. Implementations
// must tolerate being called from multiple goroutines. A nil Metrics is
// never invoked.
type Metrics interface {
	ObserveOperation(op string, duration time.Duration, err error)
}

// Store is the object storage port.
//
// Keys are opaque slash-separated strings produced by the objectkey
// package. All methods honor context cancellation.
type Store interface {
	// Put stores the payload read from r under key, overwriting any
	// existing object. size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get opens the object under key for reading. The caller must close
	// the returned reader. Returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Head returns object metadata without the payload. Returns
	// ErrNotFound when the key is absent.
	Head(ctx context.Context, key string) (ObjectInfo, error)

	// Delete removes the object under key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// Presign returns a URL authorizing op on key for the given lifetime.
	Presign(ctx context.Context, op PresignOp, key string, ttl time.Duration) (string, error)
}
