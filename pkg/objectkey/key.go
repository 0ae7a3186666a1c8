// Package objectkey derives deterministic object store keys from payload
// digests. The layout shards by digest prefix so no single prefix grows
// unbounded:
//
//	sha256/<d[0:2]>/<d[2:4]>/<digest>/<sanitized-filename>
//
// Keys are treated as opaque outside this package.
package objectkey

import (
	"strings"
)

// Prefix is the root of all canonical keys.
const Prefix = "sha256"

// forbidden are filename characters replaced by the sanitizer.
const forbidden = `<>:"/\|?*`

// ForDigest returns the canonical bucket key for a digest and display
// filename. The digest must already be normalized lowercase hex; the filename
// is sanitized with Sanitize. ForDigest is a pure function.
func ForDigest(digest, filename string) string {
	var b strings.Builder
	b.Grow(len(Prefix) + len(digest) + len(filename) + 8)
	b.WriteString(Prefix)
	b.WriteByte('/')
	b.WriteString(digest[0:2])
	b.WriteByte('/')
	b.WriteString(digest[2:4])
	b.WriteByte('/')
	b.WriteString(digest)
	b.WriteByte('/')
	b.WriteString(Sanitize(filename))
	return b.String()
}

// Sanitize normalizes a caller-supplied filename into a safe display name.
// It replaces path separators and shell-hostile characters with underscores,
// collapses ".." sequences, strips leading dots, and trims whitespace.
// Sanitize is deterministic and idempotent.
func Sanitize(filename string) string {
	s := strings.TrimSpace(filename)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(forbidden, r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	s = b.String()

	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", "_")
	}

	s = strings.TrimLeft(s, ".")
	s = strings.TrimSpace(s)

	if s == "" {
		return "file"
	}
	return s
}
