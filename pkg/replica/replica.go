// Package replica defines the optional secondary-replica port. A replica
// pins payload bytes on IPFS so auditors can verify evidence against a
// content identifier that the service does not control.
//
// Replication is strictly best-effort: ingestion never fails because a pin
// failed, and the artifact record simply carries a null CID until an admin
// rescan or re-pin succeeds.
package replica

import (
	"context"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
)

// PinResult describes a successful pin.
type PinResult struct {
	// CID is the CIDv1 string of the pinned payload.
	CID string

	// Size is the number of payload bytes pinned.
	Size int64
}

// Pinner is the secondary-replica port.
type Pinner interface {
	// Pin uploads and pins the payload read from r. name is a display
	// label only and has no effect on the resulting CID.
	Pin(ctx context.Context, name string, r io.Reader) (PinResult, error)

	// Unpin releases the pin for the given CID. Unpinning an unknown CID
	// is not an error.
	Unpin(ctx context.Context, cidStr string) error

	// GatewayURL returns a public gateway URL for the given CID.
	GatewayURL(cidStr string) string
}

// ValidateCID checks that s parses as a CID.
func ValidateCID(s string) error {
	if _, err := cid.Decode(s); err != nil {
		return fmt.Errorf("invalid CID %q: %w", s, err)
	}
	return nil
}
