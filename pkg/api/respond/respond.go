// Package respond writes the wire-level JSON bodies shared by handlers
// and middleware.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/carbonledger/evidenced/internal/logger"
	"github.com/carbonledger/evidenced/pkg/errkind"
)

// ErrorBody is the uniform error payload.
type ErrorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out; nothing left to do but log.
		logger.Error("failed to encode response body", logger.Err(err))
	}
}

// statusFor maps an error kind to its HTTP status code.
func statusFor(kind errkind.Kind) int {
	switch kind {
	case errkind.Validation:
		return http.StatusBadRequest
	case errkind.Authentication:
		return http.StatusUnauthorized
	case errkind.Authorization:
		return http.StatusForbidden
	case errkind.NotFound:
		return http.StatusNotFound
	case errkind.Conflict, errkind.HashMismatch:
		return http.StatusConflict
	case errkind.SessionExpired:
		return http.StatusGone
	case errkind.FileTooLarge:
		return http.StatusRequestEntityTooLarge
	case errkind.UnsupportedMime:
		return http.StatusUnsupportedMediaType
	case errkind.Precondition:
		return http.StatusPreconditionFailed
	default:
		// Storage, IPFS and anything uncategorized.
		return http.StatusInternalServerError
	}
}

// Error maps err to its status code and writes the error body. Internal
// causes are never echoed to the client for 5xx responses.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := errkind.KindOf(err)
	status := statusFor(kind)

	msg := errkind.MessageOf(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorCtx(r.Context(), "request failed",
			logger.String(logger.KeyOperation, r.Method+" "+r.URL.Path),
			logger.Err(err),
		)
		msg = "internal error"
	}

	JSON(w, status, ErrorBody{
		Error:   msg,
		Code:    string(kind),
		Details: errkind.DetailsOf(err),
	})
}

// ErrorMessage writes an error body without an underlying error value.
func ErrorMessage(w http.ResponseWriter, kind errkind.Kind, msg string) {
	JSON(w, statusFor(kind), ErrorBody{Error: msg, Code: string(kind)})
}
