package ingest

import (
	"context"
	"time"

	"github.com/carbonledger/evidenced/internal/logger"
	"github.com/carbonledger/evidenced/pkg/blobstore"
	"github.com/carbonledger/evidenced/pkg/catalog"
	"github.com/carbonledger/evidenced/pkg/errkind"
	"github.com/carbonledger/evidenced/pkg/objectkey"
)

// CompleteRequest finalizes an upload session.
type CompleteRequest struct {
	UploadID string
	Token    string
}

// Result is the artifact descriptor returned by a successful complete.
type Result struct {
	ArtifactID  string  `json:"artifactId"`
	SHA256Hex   string  `json:"sha256Hex"`
	SizeBytes   int64   `json:"sizeBytes"`
	Mime        string  `json:"mime"`
	BucketKey   string  `json:"bucketKey"`
	CIDv1       *string `json:"cidV1,omitempty"`
	DownloadURL string  `json:"downloadUrl"`
}

// Complete verifies the staged payload, deduplicates against the catalog
// and transitions the session to a terminal state.
//
// Complete is idempotent: calling it again for an already-COMPLETE session
// returns the same artifact descriptor without mutating anything. A
// transient storage or catalog failure leaves the session PENDING and the
// staged object in place, so the call can be retried.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (result *Result, err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordComplete(time.Since(start), err)
		}
	}()

	if req.UploadID == "" {
		return nil, errkind.New(errkind.Validation, "uploadId is required")
	}
	if err := s.tokens.Verify(req.Token, req.UploadID); err != nil {
		return nil, errkind.Wrap(errkind.Authentication, err, "invalid upload token")
	}

	session, err := s.catalog.GetSession(ctx, req.UploadID)
	if err != nil {
		return nil, errkind.Wrap(errkind.NotFound, err, "upload session not found")
	}

	// Terminal sessions are already decided.
	switch session.Status {
	case catalog.SessionComplete:
		return s.describeCompleted(ctx, session)
	case catalog.SessionAborted:
		return nil, errkind.New(errkind.HashMismatch, "upload session was aborted")
	case catalog.SessionExpired:
		return nil, errkind.New(errkind.SessionExpired, "upload session has expired")
	}

	// Expiry is observed lazily; there is no background reaper.
	now := time.Now()
	if session.Expired(now) {
		s.transition(ctx, session.ID, catalog.SessionExpired, now)
		return nil, errkind.New(errkind.SessionExpired, "upload session has expired")
	}

	if session.StagingKey == "" {
		return nil, errkind.New(errkind.Validation, "session has no staging key")
	}

	stream, _, err := s.blobs.Get(ctx, session.StagingKey)
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err, "failed to open staged object")
	}
	hashed, err := s.hasher.HashStream(ctx, stream)
	stream.Close()
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err, "failed to hash staged object")
	}

	// A declared digest that does not match is fatal to the session.
	if session.DeclaredDigest != "" && session.DeclaredDigest != hashed.SHA256Hex {
		s.transition(ctx, session.ID, catalog.SessionAborted, now)
		logger.WarnCtx(ctx, "hash mismatch, session aborted",
			logger.UploadID(session.ID),
			logger.Digest(hashed.SHA256Hex),
		)
		return nil, errkind.New(errkind.HashMismatch, "uploaded bytes do not match the declared digest").
			WithDetails(map[string]any{
				"declared": session.DeclaredDigest,
				"actual":   hashed.SHA256Hex,
			})
	}

	existing, err := s.catalog.FindArtifactByDigest(ctx, hashed.SHA256Hex)
	if err == nil {
		return s.finishDedup(ctx, session, existing, now)
	}

	// New artifact. Copy the staged object to its canonical key first
	// so the artifact never references a session-scoped key.
	canonicalKey := objectkey.ForDigest(hashed.SHA256Hex, session.Filename)
	if canonicalKey != session.StagingKey {
		if err := s.copyToCanonical(ctx, session.StagingKey, canonicalKey, effectiveMime(session), hashed.SizeBytes); err != nil {
			return nil, err
		}
	}

	verifiedAt := now
	artifact := &catalog.Artifact{
		Digest:        hashed.SHA256Hex,
		BucketKey:     canonicalKey,
		Filename:      session.Filename,
		Mime:          effectiveMime(session),
		SizeBytes:     hashed.SizeBytes,
		UploaderOrgID: session.UploaderOrgID,
		ProjectID:     session.ProjectID,
		IssuanceID:    session.IssuanceID,
		MetaJSON:      session.MetaJSON,
		ScanStatus:    catalog.ScanPending,
		VerifiedAt:    &verifiedAt,
	}
	artifact, created, err := s.catalog.CreateArtifactIfAbsent(ctx, artifact)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "failed to persist artifact")
	}
	if !created {
		// A concurrent complete of the same payload won the insert race.
		return s.finishDedup(ctx, session, artifact, now)
	}

	// Replication is best-effort and never fails the request.
	cid := s.pinArtifact(ctx, artifact)

	if err := s.finalize(ctx, session.ID, artifact.ID, now); err != nil {
		return nil, err
	}
	s.dropStaged(ctx, session.StagingKey, artifact.BucketKey)

	logger.InfoCtx(ctx, "upload completed",
		logger.UploadID(session.ID),
		logger.ArtifactID(artifact.ID),
		logger.Digest(artifact.Digest),
		logger.Size(artifact.SizeBytes),
	)

	return &Result{
		ArtifactID:  artifact.ID,
		SHA256Hex:   artifact.Digest,
		SizeBytes:   artifact.SizeBytes,
		Mime:        artifact.Mime,
		BucketKey:   artifact.BucketKey,
		CIDv1:       cid,
		DownloadURL: s.downloadURL(ctx, artifact.BucketKey),
	}, nil
}

// finishDedup completes a session whose payload already has an artifact.
// Nothing is created and nothing is re-pinned.
func (s *Service) finishDedup(ctx context.Context, session *catalog.UploadSession, artifact *catalog.Artifact, now time.Time) (*Result, error) {
	if s.metrics != nil {
		s.metrics.RecordDedup()
	}

	if err := s.finalize(ctx, session.ID, artifact.ID, now); err != nil {
		return nil, err
	}
	s.dropStaged(ctx, session.StagingKey, artifact.BucketKey)

	logger.InfoCtx(ctx, "upload deduplicated",
		logger.UploadID(session.ID),
		logger.ArtifactID(artifact.ID),
		logger.Digest(artifact.Digest),
	)

	return &Result{
		ArtifactID:  artifact.ID,
		SHA256Hex:   artifact.Digest,
		SizeBytes:   artifact.SizeBytes,
		Mime:        artifact.Mime,
		BucketKey:   artifact.BucketKey,
		CIDv1:       artifact.CID,
		DownloadURL: s.downloadURL(ctx, artifact.BucketKey),
	}, nil
}

// finalize links the artifact and moves the session PENDING -> COMPLETE.
// Losing the transition race to another complete call is fine as long as
// the session ended up COMPLETE.
func (s *Service) finalize(ctx context.Context, sessionID, artifactID string, now time.Time) error {
	if err := s.catalog.LinkSessionArtifact(ctx, sessionID, artifactID); err != nil {
		return errkind.Wrap(errkind.Internal, err, "failed to link session to artifact")
	}

	err := s.catalog.UpdateSessionStatus(ctx, sessionID, catalog.SessionPending, catalog.SessionComplete, &now)
	if err == nil {
		return nil
	}

	session, getErr := s.catalog.GetSession(ctx, sessionID)
	if getErr == nil && session.Status == catalog.SessionComplete {
		return nil
	}
	return errkind.Wrap(errkind.Internal, err, "failed to complete session")
}

// transition moves the session to a terminal failure state, best-effort.
func (s *Service) transition(ctx context.Context, sessionID string, to catalog.SessionStatus, now time.Time) {
	if err := s.catalog.UpdateSessionStatus(ctx, sessionID, catalog.SessionPending, to, &now); err != nil {
		logger.WarnCtx(ctx, "failed to transition session",
			logger.UploadID(sessionID),
			logger.String(logger.KeyStatus, string(to)),
			logger.Err(err),
		)
	}
}

// copyToCanonical copies the staged object to its canonical digest-derived
// key. The staged copy stays in place until the session outcome is durable,
// so a failed complete remains retriable.
func (s *Service) copyToCanonical(ctx context.Context, from, to, contentType string, size int64) error {
	stream, _, err := s.blobs.Get(ctx, from)
	if err != nil {
		return errkind.Wrap(errkind.Storage, err, "failed to re-open staged object")
	}
	defer stream.Close()

	if err := s.blobs.Put(ctx, to, stream, size, contentType); err != nil {
		return errkind.Wrap(errkind.Storage, err, "failed to store object at canonical key")
	}
	return nil
}

// dropStaged removes the redundant staged copy once the artifact row and
// session transition are committed. Best-effort; an orphaned staged object
// is invisible to the catalog.
func (s *Service) dropStaged(ctx context.Context, stagingKey, bucketKey string) {
	if stagingKey == "" || stagingKey == bucketKey {
		return
	}
	if err := s.blobs.Delete(ctx, stagingKey); err != nil {
		logger.WarnCtx(ctx, "failed to delete staged object",
			logger.BucketKey(stagingKey), logger.Err(err))
	}
}

// pinArtifact replicates the payload to the secondary network. Failures
// are logged and counted, never surfaced.
func (s *Service) pinArtifact(ctx context.Context, artifact *catalog.Artifact) *string {
	if s.pinner == nil {
		return nil
	}

	cid, err := func() (string, error) {
		stream, _, err := s.blobs.Get(ctx, artifact.BucketKey)
		if err != nil {
			return "", err
		}
		defer stream.Close()

		result, err := s.pinner.Pin(ctx, artifact.Filename, stream)
		if err != nil {
			return "", err
		}
		if err := s.catalog.SetArtifactCID(ctx, artifact.ID, &result.CID); err != nil {
			return "", err
		}
		return result.CID, nil
	}()

	if s.metrics != nil {
		s.metrics.RecordPin(err)
	}
	if err != nil {
		logger.WarnCtx(ctx, "secondary replica pin failed",
			logger.ArtifactID(artifact.ID), logger.Err(err))
		return nil
	}

	logger.InfoCtx(ctx, "payload pinned",
		logger.ArtifactID(artifact.ID), logger.CID(cid))
	return &cid
}

// describeCompleted rebuilds the descriptor for an already-finalized
// session (idempotent complete).
func (s *Service) describeCompleted(ctx context.Context, session *catalog.UploadSession) (*Result, error) {
	if session.ArtifactID == nil {
		return nil, errkind.New(errkind.Internal, "completed session has no artifact")
	}
	artifact, err := s.catalog.GetArtifact(ctx, *session.ArtifactID)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "failed to load session artifact")
	}
	return &Result{
		ArtifactID:  artifact.ID,
		SHA256Hex:   artifact.Digest,
		SizeBytes:   artifact.SizeBytes,
		Mime:        artifact.Mime,
		BucketKey:   artifact.BucketKey,
		CIDv1:       artifact.CID,
		DownloadURL: s.downloadURL(ctx, artifact.BucketKey),
	}, nil
}

// downloadURL presigns a GET for the descriptor. A presign failure only
// costs the convenience URL, not the request.
func (s *Service) downloadURL(ctx context.Context, key string) string {
	url, err := s.blobs.Presign(ctx, blobstore.PresignGet, key, DownloadURLTTL)
	if err != nil {
		logger.WarnCtx(ctx, "failed to presign download URL",
			logger.BucketKey(key), logger.Err(err))
		return ""
	}
	return url
}
