// Package ingest implements the two-phase upload protocol: init issues a
// session and a presigned PUT URL, the caller uploads directly to the
// object store, and complete verifies the bytes, deduplicates against the
// catalog, and finalizes the session.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/carbonledger/evidenced/pkg/auth"
	"github.com/carbonledger/evidenced/pkg/blobstore"
	"github.com/carbonledger/evidenced/pkg/catalog"
	"github.com/carbonledger/evidenced/pkg/digest"
	"github.com/carbonledger/evidenced/pkg/metrics"
	"github.com/carbonledger/evidenced/pkg/mimetype"
	"github.com/carbonledger/evidenced/pkg/replica"
)

// DefaultMaxUploadBytes caps payload size when no override is configured.
const DefaultMaxUploadBytes = 52_428_800 // 50 MiB

// DefaultSessionTTL is the window between init and complete.
const DefaultSessionTTL = 5 * time.Minute

// DownloadURLTTL is the lifetime of presigned GET URLs returned to
// clients.
const DownloadURLTTL = 300 * time.Second

// Catalog is the slice of the catalog the ingestion controller needs.
// *catalog.GORMStore satisfies it.
type Catalog interface {
	CreateSession(ctx context.Context, session *catalog.UploadSession) (string, error)
	GetSession(ctx context.Context, id string) (*catalog.UploadSession, error)
	UpdateSessionStatus(ctx context.Context, id string, from, to catalog.SessionStatus, completedAt *time.Time) error
	LinkSessionArtifact(ctx context.Context, id, artifactID string) error
	CreateArtifactIfAbsent(ctx context.Context, artifact *catalog.Artifact) (*catalog.Artifact, bool, error)
	FindArtifactByDigest(ctx context.Context, digest string) (*catalog.Artifact, error)
	GetArtifact(ctx context.Context, id string) (*catalog.Artifact, error)
	SetArtifactCID(ctx context.Context, id string, cid *string) error
}

var _ Catalog = (*catalog.GORMStore)(nil)

// Service coordinates sessions, the object store, the digest engine and
// the optional secondary replica.
type Service struct {
	catalog Catalog
	blobs   blobstore.Store
	pinner  replica.Pinner // nil when replication is disabled
	hasher  *digest.Engine
	guard   *mimetype.Guard
	tokens  *auth.UploadTokenIssuer
	metrics metrics.IngestMetrics

	maxUploadBytes int64
	sessionTTL     time.Duration
}

// Config contains the dependencies and limits for the ingestion service.
type Config struct {
	Catalog Catalog
	Blobs   blobstore.Store

	// Pinner is the optional secondary replica. Nil disables pinning.
	Pinner replica.Pinner

	Hasher *digest.Engine
	Guard  *mimetype.Guard
	Tokens *auth.UploadTokenIssuer

	// Metrics is optional.
	Metrics metrics.IngestMetrics

	// MaxUploadBytes caps declared payload sizes. Default: 50 MiB.
	MaxUploadBytes int64

	// SessionTTL is the init-to-complete window. Default: 5 minutes.
	SessionTTL time.Duration
}

// New creates the ingestion service.
func New(cfg Config) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if cfg.Hasher == nil {
		return nil, fmt.Errorf("digest engine is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("upload token issuer is required")
	}

	guard := cfg.Guard
	if guard == nil {
		guard = mimetype.NewGuard(nil)
	}
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &Service{
		catalog:        cfg.Catalog,
		blobs:          cfg.Blobs,
		pinner:         cfg.Pinner,
		hasher:         cfg.Hasher,
		guard:          guard,
		tokens:         cfg.Tokens,
		metrics:        cfg.Metrics,
		maxUploadBytes: maxBytes,
		sessionTTL:     ttl,
	}, nil
}

// MaxUploadBytes returns the configured payload cap.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// effectiveMime resolves the MIME recorded on an artifact: the session's
// hint when present, otherwise the generic binary type.
func effectiveMime(session *catalog.UploadSession) string {
	if session.Mime != "" {
		return session.Mime
	}
	return "application/octet-stream"
}
