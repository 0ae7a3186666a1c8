package handlers

import (
	"net/http"

	"github.com/carbonledger/evidenced/pkg/api/respond"
	"github.com/carbonledger/evidenced/pkg/auth"
	"github.com/carbonledger/evidenced/pkg/ingest"
)

// UploadHandler serves the two-phase ingestion endpoints.
type UploadHandler struct {
	ingest *ingest.Service
}

// NewUploadHandler creates the upload handler.
func NewUploadHandler(svc *ingest.Service) *UploadHandler {
	return &UploadHandler{ingest: svc}
}

type initRequest struct {
	Filename       string `json:"filename"`
	SizeBytes      int64  `json:"sizeBytes"`
	MimeHint       string `json:"mimeHint"`
	DeclaredSHA256 string `json:"declaredSha256"`
	UploaderOrgID  string `json:"uploaderOrgId"`
	ProjectID      string `json:"projectId"`
	IssuanceID     string `json:"issuanceId"`
	MetaJSON       string `json:"metaJson"`
}

// Init handles POST /v1/upload/init. Responds 201 with the session
// descriptor and presigned PUT URL.
func (h *UploadHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())

	result, err := h.ingest.Init(r.Context(), ingest.InitRequest{
		Filename:       req.Filename,
		SizeBytes:      req.SizeBytes,
		MimeHint:       req.MimeHint,
		DeclaredSHA256: req.DeclaredSHA256,
		AppKey:         principal.AppKey,
		UploaderOrgID:  req.UploaderOrgID,
		ProjectID:      req.ProjectID,
		IssuanceID:     req.IssuanceID,
		MetaJSON:       req.MetaJSON,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, result)
}

type completeRequest struct {
	UploadID string `json:"uploadId"`
	Token    string `json:"token"`
}

// Complete handles POST /v1/upload/complete. Responds 200 with the
// artifact descriptor.
func (h *UploadHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.ingest.Complete(r.Context(), ingest.CompleteRequest{
		UploadID: req.UploadID,
		Token:    req.Token,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}
