package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreateArtifactIfAbsent inserts the artifact unless one with the same
// digest already exists, and reports which happened. The unique index on
// digest arbitrates concurrent completes of identical payloads: the loser
// of the insert race gets the winner's row back with created=false.
func (s *GORMStore) CreateArtifactIfAbsent(ctx context.Context, artifact *Artifact) (*Artifact, bool, error) {
	if artifact.ID == "" {
		artifact.ID = uuid.New().String()
	}

	err := s.db.WithContext(ctx).Create(artifact).Error
	if err == nil {
		return artifact, true, nil
	}
	if !isUniqueConstraintError(err) {
		return nil, false, err
	}

	existing, lookupErr := s.FindArtifactByDigest(ctx, artifact.Digest)
	if lookupErr != nil {
		return nil, false, lookupErr
	}
	return existing, false, nil
}

// GetArtifact retrieves an artifact by ID.
func (s *GORMStore) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	return getByField[Artifact](s.db, ctx, "id", id, ErrArtifactNotFound)
}

// FindArtifactByDigest retrieves an artifact by its payload digest.
func (s *GORMStore) FindArtifactByDigest(ctx context.Context, digest string) (*Artifact, error) {
	return getByField[Artifact](s.db, ctx, "digest", digest, ErrArtifactNotFound)
}

// ListArtifactsCreatedBefore returns artifacts older than the cutoff,
// oldest first, up to limit. A limit of 0 means no limit.
func (s *GORMStore) ListArtifactsCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Artifact, error) {
	var artifacts []*Artifact
	q := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&artifacts).Error; err != nil {
		return nil, err
	}
	return artifacts, nil
}

// DeleteArtifact removes an artifact row.
func (s *GORMStore) DeleteArtifact(ctx context.Context, id string) error {
	return deleteByField[Artifact](s.db, ctx, "id", id, ErrArtifactNotFound)
}

// SetArtifactCID records the secondary-replica CID for an artifact.
// A nil cid clears it.
func (s *GORMStore) SetArtifactCID(ctx context.Context, id string, cid *string) error {
	result := s.db.WithContext(ctx).
		Model(&Artifact{}).
		Where("id = ?", id).
		Update("cid", cid)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrArtifactNotFound
	}
	return nil
}

// SetArtifactScanStatus records the outcome of an integrity rescan.
func (s *GORMStore) SetArtifactScanStatus(ctx context.Context, id string, status ScanStatus, verifiedAt *time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&Artifact{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"scan_status": status,
			"verified_at": verifiedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrArtifactNotFound
	}
	return nil
}
