package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carbonledger/evidenced/pkg/api/respond"
	"github.com/carbonledger/evidenced/pkg/catalog"
	"github.com/carbonledger/evidenced/pkg/retrieval"
)

// ArtifactHandler serves the read paths.
type ArtifactHandler struct {
	retrieval *retrieval.Service
}

// NewArtifactHandler creates the artifact handler.
func NewArtifactHandler(svc *retrieval.Service) *ArtifactHandler {
	return &ArtifactHandler{retrieval: svc}
}

// Download handles GET /v1/artifacts/{digest}: a 302 redirect to a
// short-lived presigned GET URL.
func (h *ArtifactHandler) Download(w http.ResponseWriter, r *http.Request) {
	url, err := h.retrieval.Download(r.Context(), chi.URLParam(r, "digest"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// artifactMeta is the wire shape of an artifact descriptor.
type artifactMeta struct {
	ArtifactID    string     `json:"artifactId"`
	SHA256Hex     string     `json:"sha256Hex"`
	BucketKey     string     `json:"bucketKey"`
	Filename      string     `json:"filename"`
	Mime          string     `json:"mime"`
	SizeBytes     int64      `json:"sizeBytes"`
	CIDv1         *string    `json:"cidV1,omitempty"`
	UploaderOrgID string     `json:"uploaderOrgId,omitempty"`
	ProjectID     string     `json:"projectId,omitempty"`
	IssuanceID    string     `json:"issuanceId,omitempty"`
	MetaJSON      string     `json:"metaJson,omitempty"`
	ScanStatus    string     `json:"scanStatus"`
	VerifiedAt    *time.Time `json:"verifiedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func toMeta(a *catalog.Artifact) artifactMeta {
	return artifactMeta{
		ArtifactID:    a.ID,
		SHA256Hex:     a.Digest,
		BucketKey:     a.BucketKey,
		Filename:      a.Filename,
		Mime:          a.Mime,
		SizeBytes:     a.SizeBytes,
		CIDv1:         a.CID,
		UploaderOrgID: a.UploaderOrgID,
		ProjectID:     a.ProjectID,
		IssuanceID:    a.IssuanceID,
		MetaJSON:      a.MetaJSON,
		ScanStatus:    string(a.ScanStatus),
		VerifiedAt:    a.VerifiedAt,
		CreatedAt:     a.CreatedAt,
	}
}

// Meta handles GET /v1/artifacts/{digest}/meta.
func (h *ArtifactHandler) Meta(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.retrieval.Meta(r.Context(), chi.URLParam(r, "digest"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, toMeta(artifact))
}

// Verify handles GET /v1/artifacts/{digest}/verify: the unauthenticated
// existence probe. It answers from the catalog alone.
func (h *ArtifactHandler) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.retrieval.Verify(r.Context(), chi.URLParam(r, "digest"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}
