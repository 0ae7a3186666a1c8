package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/carbonledger/evidenced/internal/logger"
	"github.com/carbonledger/evidenced/pkg/api/respond"
	"github.com/carbonledger/evidenced/pkg/blobstore"
	"github.com/carbonledger/evidenced/pkg/errkind"
)

// LocalObjectHandler serves raw object bytes for the local filesystem
// driver. The fs store has no external endpoint, so its presigned URLs
// point back at this route. Mounted only when the local driver is
// active; the s3 driver presigns against the bucket directly.
type LocalObjectHandler struct {
	store  blobstore.Store
	prefix string
}

// NewLocalObjectHandler creates the raw object handler. prefix is the
// mount path, e.g. "/local-objects".
func NewLocalObjectHandler(store blobstore.Store, prefix string) *LocalObjectHandler {
	return &LocalObjectHandler{store: store, prefix: strings.TrimSuffix(prefix, "/")}
}

// key extracts the object key from the request path.
func (h *LocalObjectHandler) key(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, h.prefix+"/")
}

// Put handles the upload leg of a presigned URL.
func (h *LocalObjectHandler) Put(w http.ResponseWriter, r *http.Request) {
	key := h.key(r)
	if key == "" {
		respond.ErrorMessage(w, errkind.Validation, "object key is required")
		return
	}

	size := r.ContentLength
	if err := h.store.Put(r.Context(), key, r.Body, size, r.Header.Get("Content-Type")); err != nil {
		respond.Error(w, r, errkind.Wrap(errkind.Storage, err, "failed to store object"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Get handles the download leg of a presigned URL.
func (h *LocalObjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := h.key(r)
	if key == "" {
		respond.ErrorMessage(w, errkind.Validation, "object key is required")
		return
	}

	stream, info, err := h.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			respond.ErrorMessage(w, errkind.NotFound, "object not found")
			return
		}
		respond.Error(w, r, errkind.Wrap(errkind.Storage, err, "failed to open object"))
		return
	}
	defer stream.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, stream); err != nil {
		logger.WarnCtx(r.Context(), "object download interrupted",
			logger.BucketKey(key), logger.Err(err))
	}
}
