// Package s3 implements the blobstore port on top of Amazon S3 or any
// S3-compatible object store (MinIO, Ceph RGW, Cloudflare R2).
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/carbonledger/evidenced/internal/logger"
	"github.com/carbonledger/evidenced/pkg/blobstore"
)

// Store implements blobstore.Store against an S3 bucket.
//
// Thread safety: safe for concurrent use. Concurrent writes to the same
// key are last-write-wins, which is acceptable because keys are
// content-addressed.
type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string

	retry   retryConfig
	metrics blobstore.Metrics
}

// retryConfig holds retry settings for transient S3 failures.
type retryConfig struct {
	maxRetries        uint          // Maximum number of retry attempts (default: 3)
	initialBackoff    time.Duration // Initial backoff duration (default: 100ms)
	maxBackoff        time.Duration // Maximum backoff duration (default: 2s)
	backoffMultiplier float64       // Backoff multiplier (default: 2.0)
}

// Config contains configuration for the S3 store.
type Config struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket is the S3 bucket name. The bucket must already exist.
	Bucket string

	// MaxRetries is the maximum number of retry attempts for transient
	// errors (default: 3). Presign calls are never retried: they are
	// local signature computations.
	MaxRetries uint

	// InitialBackoff is the backoff before the first retry (default: 100ms).
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff (default: 2s).
	MaxBackoff time.Duration

	// BackoffMultiplier is the exponential backoff factor (default: 2.0).
	BackoffMultiplier float64

	// Metrics is an optional per-operation metrics collector.
	Metrics blobstore.Metrics
}

// NewClientFromConfig creates an S3 client from endpoint-style parameters.
// An empty endpoint uses the default AWS resolution.
func NewClientFromConfig(
	ctx context.Context,
	endpoint,
	region,
	accessKeyID,
	secretAccessKey string,
	forcePathStyle bool,
) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"", // session token (empty for static credentials)
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = forcePathStyle
	})

	return client, nil
}

// New creates an S3-backed store and verifies bucket access.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff == 0 {
		initialBackoff = 100 * time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 2 * time.Second
	}
	backoffMultiplier := cfg.BackoffMultiplier
	if backoffMultiplier == 0 {
		backoffMultiplier = 2.0
	}

	return &Store{
		client:    cfg.Client,
		presigner: s3.NewPresignClient(cfg.Client),
		bucket:    cfg.Bucket,
		metrics:   cfg.Metrics,
		retry: retryConfig{
			maxRetries:        maxRetries,
			initialBackoff:    initialBackoff,
			maxBackoff:        maxBackoff,
			backoffMultiplier: backoffMultiplier,
		},
	}, nil
}

// Put stores the payload under key. Streams are not retried: a reader can
// only be consumed once.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (err error) {
	defer s.observe("Put", time.Now(), &err)

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err = s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %q: %w", key, err)
	}
	return nil
}

// Get opens the object under key.
func (s *Store) Get(ctx context.Context, key string) (rc io.ReadCloser, info blobstore.ObjectInfo, err error) {
	defer s.observe("Get", time.Now(), &err)

	var out *s3.GetObjectOutput
	err = s.withRetry(ctx, "GetObject", func() error {
		var opErr error
		out, opErr = s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return opErr
	})
	if err != nil {
		if isNotFound(err) {
			return nil, blobstore.ObjectInfo{}, blobstore.ErrNotFound
		}
		return nil, blobstore.ObjectInfo{}, fmt.Errorf("failed to get object %q: %w", key, err)
	}

	info = blobstore.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return out.Body, info, nil
}

// Head returns object metadata without fetching the payload.
func (s *Store) Head(ctx context.Context, key string) (info blobstore.ObjectInfo, err error) {
	defer s.observe("Head", time.Now(), &err)

	var out *s3.HeadObjectOutput
	err = s.withRetry(ctx, "HeadObject", func() error {
		var opErr error
		out, opErr = s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return opErr
	})
	if err != nil {
		if isNotFound(err) {
			return blobstore.ObjectInfo{}, blobstore.ErrNotFound
		}
		return blobstore.ObjectInfo{}, fmt.Errorf("failed to head object %q: %w", key, err)
	}

	info = blobstore.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

// Delete removes the object under key. S3 DeleteObject is idempotent, so
// deleting an absent key succeeds.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer s.observe("Delete", time.Now(), &err)

	err = s.withRetry(ctx, "DeleteObject", func() error {
		_, opErr := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return opErr
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %q: %w", key, err)
	}
	return nil
}

// Presign returns a URL authorizing op on key for the given lifetime.
func (s *Store) Presign(ctx context.Context, op blobstore.PresignOp, key string, ttl time.Duration) (url string, err error) {
	defer s.observe("Presign", time.Now(), &err)

	switch op {
	case blobstore.PresignPut:
		req, presignErr := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
		if presignErr != nil {
			return "", fmt.Errorf("failed to presign PUT for %q: %w", key, presignErr)
		}
		return req.URL, nil

	case blobstore.PresignGet:
		req, presignErr := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
		if presignErr != nil {
			return "", fmt.Errorf("failed to presign GET for %q: %w", key, presignErr)
		}
		return req.URL, nil

	default:
		return "", fmt.Errorf("unsupported presign operation %q", op)
	}
}

// withRetry runs fn with exponential backoff on transient failures.
// Not-found errors and context cancellation are returned immediately.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := s.retry.initialBackoff

	var err error
	for attempt := uint(0); ; attempt++ {
		err = fn()
		if err == nil || isNotFound(err) || ctx.Err() != nil {
			return err
		}
		if attempt >= s.retry.maxRetries {
			return err
		}

		logger.WarnCtx(ctx, "retrying S3 operation",
			logger.String(logger.KeyOperation, op),
			logger.Attempt(int(attempt+1)),
			logger.Int(logger.KeyMaxRetries, int(s.retry.maxRetries)),
			logger.Err(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * s.retry.backoffMultiplier)
		if backoff > s.retry.maxBackoff {
			backoff = s.retry.maxBackoff
		}
	}
}

func (s *Store) observe(op string, start time.Time, err *error) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, time.Since(start), *err)
	}
}

// isNotFound detects the S3 shapes of a missing object. HeadObject reports
// a bare NotFound; GetObject reports NoSuchKey.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}
