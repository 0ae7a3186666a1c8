package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/carbonledger/evidenced/pkg/api/respond"
	"github.com/carbonledger/evidenced/pkg/errkind"
)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns false after writing the error response when decoding fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respond.ErrorMessage(w, errkind.Validation, "invalid request body")
		return false
	}
	return true
}
