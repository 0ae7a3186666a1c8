// Package fs implements the blobstore port on the local filesystem.
// It exists for development and single-node deployments; object keys map
// directly to paths under the store root.
//
// Presigned URLs are plain URLs under a public base: the HTTP layer mounts
// a raw object endpoint that accepts PUT and GET for these paths. There is
// no cryptographic signing; local mode trusts its network boundary.
package fs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carbonledger/evidenced/pkg/blobstore"
)

// Store implements blobstore.Store on a local directory.
type Store struct {
	root    string
	baseURL string

	metrics blobstore.Metrics
}

// Config contains configuration for the filesystem store.
type Config struct {
	// Root is the directory holding all objects. Created if absent.
	Root string

	// PublicBaseURL is the URL prefix presigned URLs are built from,
	// e.g. "http://localhost:3001/local-objects".
	PublicBaseURL string

	// Metrics is an optional per-operation metrics collector.
	Metrics blobstore.Metrics
}

// New creates a filesystem-backed store rooted at cfg.Root.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("store root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root %q: %w", cfg.Root, err)
	}
	return &Store{
		root:    cfg.Root,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		metrics: cfg.Metrics,
	}, nil
}

// path maps an object key to a filesystem path, rejecting keys that would
// escape the store root.
func (s *Store) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes the payload atomically: bytes land in a temp file in the
// target directory and are renamed into place, so readers never observe a
// partial object.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (err error) {
	defer s.observe("Put", time.Now(), &err)

	if err = ctx.Err(); err != nil {
		return err
	}

	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err = io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write object %q: %w", key, err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err = os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to finalize object %q: %w", key, err)
	}
	return nil
}

// Get opens the object under key.
func (s *Store) Get(ctx context.Context, key string) (rc io.ReadCloser, info blobstore.ObjectInfo, err error) {
	defer s.observe("Get", time.Now(), &err)

	if err = ctx.Err(); err != nil {
		return nil, blobstore.ObjectInfo{}, err
	}

	target, err := s.path(key)
	if err != nil {
		return nil, blobstore.ObjectInfo{}, err
	}

	f, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, blobstore.ObjectInfo{}, blobstore.ErrNotFound
		}
		return nil, blobstore.ObjectInfo{}, fmt.Errorf("failed to open object %q: %w", key, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, blobstore.ObjectInfo{}, fmt.Errorf("failed to stat object %q: %w", key, err)
	}

	return f, blobstore.ObjectInfo{
		Key:          key,
		Size:         stat.Size(),
		LastModified: stat.ModTime(),
	}, nil
}

// Head returns object metadata without opening the payload.
func (s *Store) Head(ctx context.Context, key string) (info blobstore.ObjectInfo, err error) {
	defer s.observe("Head", time.Now(), &err)

	if err = ctx.Err(); err != nil {
		return blobstore.ObjectInfo{}, err
	}

	target, err := s.path(key)
	if err != nil {
		return blobstore.ObjectInfo{}, err
	}

	stat, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return blobstore.ObjectInfo{}, blobstore.ErrNotFound
		}
		return blobstore.ObjectInfo{}, fmt.Errorf("failed to stat object %q: %w", key, err)
	}

	return blobstore.ObjectInfo{
		Key:          key,
		Size:         stat.Size(),
		LastModified: stat.ModTime(),
	}, nil
}

// Delete removes the object under key. Absent keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer s.observe("Delete", time.Now(), &err)

	if err = ctx.Err(); err != nil {
		return err
	}

	target, err := s.path(key)
	if err != nil {
		return err
	}

	if err = os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object %q: %w", key, err)
	}
	return nil
}

// Presign returns a plain URL under the public base. The op does not
// change the URL shape; the raw object endpoint dispatches on HTTP method.
func (s *Store) Presign(ctx context.Context, op blobstore.PresignOp, key string, ttl time.Duration) (string, error) {
	if s.baseURL == "" {
		return "", fmt.Errorf("no public base URL configured for local store")
	}

	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + strings.Join(segments, "/"), nil
}

func (s *Store) observe(op string, start time.Time, err *error) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, time.Since(start), *err)
	}
}
