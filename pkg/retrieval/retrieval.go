// Package retrieval serves read paths: presigned download redirects,
// artifact metadata and the cheap existence probe.
package retrieval

import (
	"context"
	"time"

	"github.com/carbonledger/evidenced/pkg/blobstore"
	"github.com/carbonledger/evidenced/pkg/catalog"
	"github.com/carbonledger/evidenced/pkg/digest"
	"github.com/carbonledger/evidenced/pkg/errkind"
	"github.com/carbonledger/evidenced/pkg/metrics"
)

// DownloadURLTTL is the lifetime of presigned GET URLs.
const DownloadURLTTL = 300 * time.Second

// Catalog is the read-side slice of the catalog. *catalog.GORMStore
// satisfies it.
type Catalog interface {
	FindArtifactByDigest(ctx context.Context, digest string) (*catalog.Artifact, error)
}

// Service resolves digests to artifacts and download URLs.
type Service struct {
	catalog Catalog
	blobs   blobstore.Store
	metrics metrics.IngestMetrics
}

// New creates the retrieval service. metrics may be nil.
func New(cat Catalog, blobs blobstore.Store, m metrics.IngestMetrics) *Service {
	return &Service{catalog: cat, blobs: blobs, metrics: m}
}

// lookup normalizes and resolves a digest to its artifact.
func (s *Service) lookup(ctx context.Context, rawDigest string) (*catalog.Artifact, error) {
	d := digest.Normalize(rawDigest)
	if !digest.IsValid(d) {
		return nil, errkind.Newf(errkind.Validation, "%q is not a valid lowercase hex SHA-256", rawDigest)
	}
	artifact, err := s.catalog.FindArtifactByDigest(ctx, d)
	if err != nil {
		return nil, errkind.Wrap(errkind.NotFound, err, "no artifact with this digest")
	}
	return artifact, nil
}

// Download returns a presigned GET URL for the artifact's canonical
// bytes. The caller issues the 302.
func (s *Service) Download(ctx context.Context, rawDigest string) (url string, err error) {
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordDownload(err)
		}
	}()

	artifact, err := s.lookup(ctx, rawDigest)
	if err != nil {
		return "", err
	}

	url, err = s.blobs.Presign(ctx, blobstore.PresignGet, artifact.BucketKey, DownloadURLTTL)
	if err != nil {
		return "", errkind.Wrap(errkind.Storage, err, "failed to presign download URL")
	}
	return url, nil
}

// Meta returns the full artifact descriptor.
func (s *Service) Meta(ctx context.Context, rawDigest string) (*catalog.Artifact, error) {
	return s.lookup(ctx, rawDigest)
}

// VerifyResult is the existence probe payload.
type VerifyResult struct {
	Exists     bool       `json:"exists"`
	SizeBytes  *int64     `json:"sizeBytes,omitempty"`
	Mime       *string    `json:"mime,omitempty"`
	CIDv1      *string    `json:"cidV1,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	ScanStatus *string    `json:"scanStatus,omitempty"`
}

// Verify answers from the catalog alone. It deliberately never touches
// the object store, so it cannot leak whether the bytes are currently
// readable.
func (s *Service) Verify(ctx context.Context, rawDigest string) (*VerifyResult, error) {
	artifact, err := s.lookup(ctx, rawDigest)
	if err != nil {
		if errkind.Is(err, errkind.NotFound) {
			return &VerifyResult{Exists: false}, nil
		}
		return nil, err
	}

	scan := string(artifact.ScanStatus)
	return &VerifyResult{
		Exists:     true,
		SizeBytes:  &artifact.SizeBytes,
		Mime:       &artifact.Mime,
		CIDv1:      artifact.CID,
		CreatedAt:  &artifact.CreatedAt,
		ScanStatus: &scan,
	}, nil
}
