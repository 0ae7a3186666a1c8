// Package mimetype enforces the MIME allow-list for evidence uploads.
package mimetype

import (
	"path/filepath"
	"strings"

	"github.com/carbonledger/evidenced/pkg/errkind"
)

// DefaultAllowed is the fixed allow-list of accepted MIME types.
// Comparison is case-insensitive.
var DefaultAllowed = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"text/csv",
	"application/json",
	"application/zip",
	"application/x-zip-compressed",
	"text/plain",
	"application/octet-stream",
}

// byExtension maps trailing filename extensions to best-effort MIME hints.
var byExtension = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".csv":  "text/csv",
	".json": "application/json",
	".zip":  "application/zip",
	".txt":  "text/plain",
}

// Guard validates declared MIME types against an allow-list.
type Guard struct {
	allowed map[string]struct{}
}

// NewGuard creates a Guard for the given allow-list. An empty list falls
// back to DefaultAllowed.
func NewGuard(allowed []string) *Guard {
	if len(allowed) == 0 {
		allowed = DefaultAllowed
	}
	set := make(map[string]struct{}, len(allowed))
	for _, m := range allowed {
		set[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &Guard{allowed: set}
}

// Validate returns an UNSUPPORTED_MIME error when mime is not allowed.
func (g *Guard) Validate(mime string) error {
	if _, ok := g.allowed[strings.ToLower(strings.TrimSpace(mime))]; !ok {
		return errkind.Newf(errkind.UnsupportedMime, "mime type %q is not allowed", mime).
			WithDetails(map[string]any{"mime": mime})
	}
	return nil
}

// GuessFromFilename returns a best-effort MIME type from the trailing
// extension of name, or "" when unknown.
func GuessFromFilename(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return byExtension[ext]
}
