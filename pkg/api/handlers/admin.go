package handlers

import (
	"net/http"
	"time"

	"github.com/carbonledger/evidenced/pkg/admin"
	"github.com/carbonledger/evidenced/pkg/api/respond"
	"github.com/carbonledger/evidenced/pkg/errkind"
)

// AdminHandler serves operator maintenance endpoints. All routes sit
// behind the registry-only admin gate.
type AdminHandler struct {
	admin *admin.Service
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(svc *admin.Service) *AdminHandler {
	return &AdminHandler{admin: svc}
}

type sweepRequest struct {
	Before time.Time `json:"before"`
	DryRun bool      `json:"dryRun"`
}

// Sweep handles POST /v1/admin/retention/sweep.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Before.IsZero() {
		respond.ErrorMessage(w, errkind.Validation, "before is required")
		return
	}

	result, err := h.admin.Sweep(r.Context(), req.Before, req.DryRun)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}

type digestRequest struct {
	SHA256 string `json:"sha256"`
}

// Pin handles POST /v1/admin/ipfs/pin.
func (h *AdminHandler) Pin(w http.ResponseWriter, r *http.Request) {
	var req digestRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	result, err := h.admin.Pin(r.Context(), req.SHA256)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}

// Unpin handles POST /v1/admin/ipfs/unpin.
func (h *AdminHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	var req digestRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	result, err := h.admin.Unpin(r.Context(), req.SHA256)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}

// Rescan handles POST /v1/admin/rescan.
func (h *AdminHandler) Rescan(w http.ResponseWriter, r *http.Request) {
	var req digestRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	result, err := h.admin.Rescan(r.Context(), req.SHA256)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}
