// Package auth implements request authentication for the evidence API:
// per-application HMAC signatures over the raw request body, bearer JWTs
// for interactive callers, and short-lived upload tokens that bind a
// client to a single upload session.
package auth

import "context"

// Header names used by the HMAC scheme.
const (
	HeaderAppKey = "x-app-key"
	HeaderAppSig = "x-app-sig"
)

// AdminAppKey is the application key granted access to /v1/admin routes.
const AdminAppKey = "registry"

// Principal describes the authenticated caller of a request.
type Principal struct {
	// AppKey is set when the request authenticated via HMAC headers.
	AppKey string

	// UserID and OrgID are set when the request authenticated via bearer JWT.
	UserID string
	OrgID  string
}

// IsAdmin reports whether the principal may call admin operations.
func (p Principal) IsAdmin() bool {
	return p.AppKey == AdminAppKey
}

type principalCtxKey struct{}

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext extracts the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(Principal)
	return p, ok
}
