package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carbonledger/evidenced/internal/logger"
	"github.com/carbonledger/evidenced/pkg/blobstore"
	"github.com/carbonledger/evidenced/pkg/catalog"
	"github.com/carbonledger/evidenced/pkg/digest"
	"github.com/carbonledger/evidenced/pkg/errkind"
	"github.com/carbonledger/evidenced/pkg/objectkey"
)

// InitRequest describes a new upload attempt.
type InitRequest struct {
	Filename       string
	SizeBytes      int64  // 0 when undeclared
	MimeHint       string // optional, validated when present
	DeclaredSHA256 string // optional, normalized and validated when present

	// Provenance, carried into the artifact.
	AppKey        string
	UploaderOrgID string
	ProjectID     string
	IssuanceID    string
	MetaJSON      string
}

// InitResult is returned to the caller to drive the direct upload.
type InitResult struct {
	UploadID  string    `json:"uploadId"`
	Token     string    `json:"token"`
	PutURL    string    `json:"putUrl"`
	BucketKey string    `json:"bucketKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Init validates the request, persists a PENDING session and returns a
// presigned PUT URL whose lifetime matches the session TTL.
//
// Failures are total: the session is persisted last, so an error at any
// step leaves nothing behind.
func (s *Service) Init(ctx context.Context, req InitRequest) (result *InitResult, err error) {
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordInit(err)
		}
	}()

	if req.Filename == "" {
		return nil, errkind.New(errkind.Validation, "filename is required")
	}
	if req.SizeBytes < 0 {
		return nil, errkind.New(errkind.Validation, "sizeBytes must be non-negative")
	}
	if req.SizeBytes > s.maxUploadBytes {
		return nil, errkind.Newf(errkind.FileTooLarge, "declared size %d exceeds the %d byte limit", req.SizeBytes, s.maxUploadBytes).
			WithDetails(map[string]any{"sizeBytes": req.SizeBytes, "maxBytes": s.maxUploadBytes})
	}
	if req.MimeHint != "" {
		if err := s.guard.Validate(req.MimeHint); err != nil {
			return nil, err
		}
	}

	declared := ""
	if req.DeclaredSHA256 != "" {
		declared = digest.Normalize(req.DeclaredSHA256)
		if !digest.IsValid(declared) {
			return nil, errkind.Newf(errkind.Validation, "declaredSha256 %q is not a valid lowercase hex SHA-256", req.DeclaredSHA256)
		}
	}

	uploadID := uuid.New().String()

	token, err := s.tokens.Issue(uploadID)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "failed to issue upload token")
	}

	// With a declared digest the staged object already lands on its
	// canonical key; otherwise it stages under the session and moves to
	// the canonical key at complete.
	var stagingKey string
	if declared != "" {
		stagingKey = objectkey.ForDigest(declared, req.Filename)
	} else {
		stagingKey = "staging/" + uploadID + "/" + objectkey.Sanitize(req.Filename)
	}

	expiresAt := time.Now().Add(s.sessionTTL)

	putURL, err := s.blobs.Presign(ctx, blobstore.PresignPut, stagingKey, s.sessionTTL)
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err, "failed to presign upload URL")
	}

	session := &catalog.UploadSession{
		ID:             uploadID,
		DeclaredDigest: declared,
		Filename:       objectkey.Sanitize(req.Filename),
		Mime:           req.MimeHint,
		DeclaredSize:   req.SizeBytes,
		StagingKey:     stagingKey,
		Status:         catalog.SessionPending,
		AppKey:         req.AppKey,
		UploaderOrgID:  req.UploaderOrgID,
		ProjectID:      req.ProjectID,
		IssuanceID:     req.IssuanceID,
		MetaJSON:       req.MetaJSON,
		ExpiresAt:      expiresAt,
	}
	if _, err := s.catalog.CreateSession(ctx, session); err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "failed to persist upload session")
	}

	logger.InfoCtx(ctx, "upload session initialized",
		logger.UploadID(uploadID),
		logger.BucketKey(stagingKey),
		logger.String(logger.KeyFilename, session.Filename),
		logger.Size(req.SizeBytes),
	)

	return &InitResult{
		UploadID:  uploadID,
		Token:     token,
		PutURL:    putURL,
		BucketKey: stagingKey,
		ExpiresAt: expiresAt,
	}, nil
}
