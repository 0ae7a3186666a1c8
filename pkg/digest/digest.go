// Package digest implements the streaming SHA-256 engine used to verify
// evidence payloads. Payloads are hashed while streaming from the object
// store; the full file is never buffered in memory.
package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

// hexPattern matches a normalized lowercase 64-hex SHA-256 digest.
var hexPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// copyBufferSize is the chunk size for streaming reads.
const copyBufferSize = 32 * 1024

// Result is the outcome of hashing a payload.
type Result struct {
	// SHA256Hex is the lowercase 64-hex digest.
	SHA256Hex string

	// SizeBytes is the total number of bytes observed.
	SizeBytes int64
}

// Metrics receives timing observations from the engine. May be nil.
type Metrics interface {
	ObserveHash(duration time.Duration, bytes int64)
}

// Engine hashes payload streams. The zero value is usable; a Metrics
// implementation can be attached for observability.
type Engine struct {
	metrics Metrics
}

// NewEngine creates an Engine with an optional metrics collector.
func NewEngine(metrics Metrics) *Engine {
	return &Engine{metrics: metrics}
}

// HashStream consumes r exactly once and returns its SHA-256 digest and byte
// count. The stream is read in fixed-size chunks; the context is checked
// between chunks so a cancelled request stops paying I/O cost.
//
// On any read error the partial state is discarded and the error returned.
// The engine never retries; retry policy belongs to the caller.
func (e *Engine) HashStream(ctx context.Context, r io.Reader) (Result, error) {
	start := time.Now()

	h := sha256.New()
	buf := make([]byte, copyBufferSize)
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		n, err := r.Read(buf)
		if n > 0 {
			// sha256.Write never returns an error
			h.Write(buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("reading payload stream: %w", err)
		}
	}

	result := Result{
		SHA256Hex: hex.EncodeToString(h.Sum(nil)),
		SizeBytes: total,
	}

	if e.metrics != nil {
		e.metrics.ObserveHash(time.Since(start), total)
	}

	return result, nil
}

// HashBuffer is a convenience for in-memory payloads.
func (e *Engine) HashBuffer(data []byte) Result {
	sum := sha256.Sum256(data)
	return Result{
		SHA256Hex: hex.EncodeToString(sum[:]),
		SizeBytes: int64(len(data)),
	}
}

// IsValid reports whether s is a normalized lowercase 64-hex digest.
func IsValid(s string) bool {
	return hexPattern.MatchString(s)
}

// Normalize strips a leading "0x"/"0X" prefix and lowercases s.
// It does not validate; call IsValid on the result.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	return strings.ToLower(s)
}
