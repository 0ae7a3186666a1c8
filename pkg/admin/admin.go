// Package admin implements operator-facing maintenance: retention sweeps,
// manual replica pin/unpin and integrity rescans.
package admin

import (
	"context"
	"time"

	"github.com/carbonledger/evidenced/internal/logger"
	"github.com/carbonledger/evidenced/pkg/blobstore"
	"github.com/carbonledger/evidenced/pkg/catalog"
	"github.com/carbonledger/evidenced/pkg/digest"
	"github.com/carbonledger/evidenced/pkg/errkind"
	"github.com/carbonledger/evidenced/pkg/replica"
)

// Catalog is the slice of the catalog the admin controller needs.
// *catalog.GORMStore satisfies it.
type Catalog interface {
	FindArtifactByDigest(ctx context.Context, digest string) (*catalog.Artifact, error)
	ListArtifactsCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*catalog.Artifact, error)
	DeleteArtifact(ctx context.Context, id string) error
	SetArtifactCID(ctx context.Context, id string, cid *string) error
	SetArtifactScanStatus(ctx context.Context, id string, status catalog.ScanStatus, verifiedAt *time.Time) error
}

// Service executes admin operations.
type Service struct {
	catalog Catalog
	blobs   blobstore.Store
	pinner  replica.Pinner // nil when replication is disabled
	hasher  *digest.Engine
}

// New creates the admin service. pinner may be nil.
func New(cat Catalog, blobs blobstore.Store, pinner replica.Pinner, hasher *digest.Engine) *Service {
	return &Service{catalog: cat, blobs: blobs, pinner: pinner, hasher: hasher}
}

// lookup resolves a digest to its artifact.
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

// SweptArtifact identifies one artifact in a sweep result.
type SweptArtifact struct {
	ArtifactID string    `json:"artifactId"`
	SHA256Hex  string    `json:"sha256Hex"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SweepResult is the retention sweep report. Exactly one of the two
// counters is set, matching the dryRun flag.
type SweepResult struct {
	DryRun            bool            `json:"dryRun"`
	ArtifactsDeleted  *int            `json:"artifactsDeleted,omitempty"`
	ArtifactsToDelete *int            `json:"artifactsToDelete,omitempty"`
	Artifacts         []SweptArtifact `json:"artifacts"`
}

// Sweep removes artifacts created before the cutoff: bytes first, then
// the catalog row. Per-artifact failures are logged and skipped, so the
// returned list enumerates only what was actually deleted. With dryRun
// the candidate list is returned untouched.
func (s *Service) Sweep(ctx context.Context, before time.Time, dryRun bool) (*SweepResult, error) {
	candidates, err := s.catalog.ListArtifactsCreatedBefore(ctx, before, 0)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "failed to list artifacts")
	}

	result := &SweepResult{DryRun: dryRun, Artifacts: make([]SweptArtifact, 0, len(candidates))}

	for _, artifact := range candidates {
		if !dryRun {
			// Delete is idempotent: an already-absent object is fine.
			if err := s.blobs.Delete(ctx, artifact.BucketKey); err != nil {
				logger.WarnCtx(ctx, "sweep: failed to delete object, skipping artifact",
					logger.ArtifactID(artifact.ID),
					logger.BucketKey(artifact.BucketKey),
					logger.Err(err),
				)
				continue
			}
			if err := s.catalog.DeleteArtifact(ctx, artifact.ID); err != nil {
				logger.WarnCtx(ctx, "sweep: failed to delete catalog row, skipping artifact",
					logger.ArtifactID(artifact.ID),
					logger.Err(err),
				)
				continue
			}
		}
		result.Artifacts = append(result.Artifacts, SweptArtifact{
			ArtifactID: artifact.ID,
			SHA256Hex:  artifact.Digest,
			CreatedAt:  artifact.CreatedAt,
		})
	}

	count := len(result.Artifacts)
	if dryRun {
		result.ArtifactsToDelete = &count
	} else {
		result.ArtifactsDeleted = &count
		logger.InfoCtx(ctx, "retention sweep finished",
			logger.Int("deleted", count),
			logger.Int("candidates", len(candidates)),
		)
	}
	return result, nil
}

// PinResult reports a manual pin.
type PinResult struct {
	Message    string `json:"message"`
	CIDv1      string `json:"cidV1"`
	GatewayURL string `json:"gatewayUrl"`
}

// Pin replicates an artifact's bytes to the secondary network. If the
// artifact already carries a CID the call is a no-op returning it.
func (s *Service) Pin(ctx context.Context, rawDigest string) (*PinResult, error) {
	artifact, err := s.lookup(ctx, rawDigest)
	if err != nil {
		return nil, err
	}
	if s.pinner == nil {
		return nil, errkind.New(errkind.Precondition, "secondary replica is not configured")
	}

	if artifact.CID != nil {
		return &PinResult{
			Message:    "artifact is already pinned",
			CIDv1:      *artifact.CID,
			GatewayURL: s.pinner.GatewayURL(*artifact.CID),
		}, nil
	}

	stream, _, err := s.blobs.Get(ctx, artifact.BucketKey)
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err, "failed to open artifact bytes")
	}
	defer stream.Close()

	pinned, err := s.pinner.Pin(ctx, artifact.Filename, stream)
	if err != nil {
		return nil, errkind.Wrap(errkind.IPFS, err, "pin failed")
	}
	if err := s.catalog.SetArtifactCID(ctx, artifact.ID, &pinned.CID); err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "failed to persist CID")
	}

	logger.InfoCtx(ctx, "artifact pinned",
		logger.ArtifactID(artifact.ID), logger.CID(pinned.CID))

	return &PinResult{
		Message:    "artifact pinned",
		CIDv1:      pinned.CID,
		GatewayURL: s.pinner.GatewayURL(pinned.CID),
	}, nil
}

// UnpinResult reports a manual unpin. CIDv1 is nil when there was nothing
// to unpin.
type UnpinResult struct {
	Message string  `json:"message"`
	CIDv1   *string `json:"cidV1,omitempty"`
}

// Unpin releases an artifact's secondary replica. An artifact with no CID
// is a no-op success.
func (s *Service) Unpin(ctx context.Context, rawDigest string) (*UnpinResult, error) {
	artifact, err := s.lookup(ctx, rawDigest)
	if err != nil {
		return nil, err
	}
	if artifact.CID == nil {
		return &UnpinResult{Message: "artifact has no replica to unpin"}, nil
	}
	if s.pinner == nil {
		return nil, errkind.New(errkind.Precondition, "secondary replica is not configured")
	}

	cid := *artifact.CID
	if err := s.pinner.Unpin(ctx, cid); err != nil {
		return nil, errkind.Wrap(errkind.IPFS, err, "unpin failed")
	}
	if err := s.catalog.SetArtifactCID(ctx, artifact.ID, nil); err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "failed to clear CID")
	}

	logger.InfoCtx(ctx, "artifact unpinned",
		logger.ArtifactID(artifact.ID), logger.CID(cid))

	return &UnpinResult{Message: "artifact unpinned", CIDv1: &cid}, nil
}

// RescanResult reports an integrity rescan.
type RescanResult struct {
	Message    string    `json:"message"`
	SHA256Hex  string    `json:"sha256Hex"`
	ScanStatus string    `json:"scanStatus"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

// Rescan re-streams the stored bytes and recomputes their digest. A
// mismatch flags potential corruption and is surfaced as a storage error;
// a match refreshes scanStatus and verifiedAt.
func (s *Service) Rescan(ctx context.Context, rawDigest string) (*RescanResult, error) {
	artifact, err := s.lookup(ctx, rawDigest)
	if err != nil {
		return nil, err
	}

	stream, _, err := s.blobs.Get(ctx, artifact.BucketKey)
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err, "failed to open artifact bytes")
	}
	hashed, err := s.hasher.HashStream(ctx, stream)
	stream.Close()
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err, "failed to hash artifact bytes")
	}

	if hashed.SHA256Hex != artifact.Digest {
		logger.ErrorCtx(ctx, "rescan detected digest mismatch",
			logger.ArtifactID(artifact.ID),
			logger.Digest(artifact.Digest),
			logger.String("actual_sha256", hashed.SHA256Hex),
		)
		return nil, errkind.New(errkind.Storage, "stored bytes do not match the recorded digest").
			WithDetails(map[string]any{
				"expected": artifact.Digest,
				"actual":   hashed.SHA256Hex,
			})
	}

	now := time.Now()
	if err := s.catalog.SetArtifactScanStatus(ctx, artifact.ID, catalog.ScanClean, &now); err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "failed to persist scan status")
	}

	return &RescanResult{
		Message:    "stored bytes verified",
		SHA256Hex:  artifact.Digest,
		ScanStatus: string(catalog.ScanClean),
		VerifiedAt: now,
	}, nil
}
