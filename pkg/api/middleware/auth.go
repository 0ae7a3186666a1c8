// Package middleware provides the authentication middleware for the
// evidenced HTTP API.
package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/carbonledger/evidenced/internal/logger"
	"github.com/carbonledger/evidenced/pkg/api/respond"
	"github.com/carbonledger/evidenced/pkg/auth"
	"github.com/carbonledger/evidenced/pkg/errkind"
)

// maxSignedBodyBytes caps how much request body the HMAC middleware will
// buffer. API request bodies are small JSON documents; payload bytes go
// through presigned URLs and never hit these routes.
const maxSignedBodyBytes = 1 << 20

// readBody buffers the request body and replaces it so the handler can
// read it again.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodyBytes+1))
	if err != nil {
		return nil, err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if len(body) > maxSignedBodyBytes {
		return nil, errkind.New(errkind.FileTooLarge, "request body too large")
	}
	return body, nil
}

// verifyHMAC authenticates the request against the keyring and returns
// the principal. The signature covers the raw request body.
func verifyHMAC(r *http.Request, keyring *auth.Keyring) (auth.Principal, error) {
	appKey := r.Header.Get(auth.HeaderAppKey)
	sig := r.Header.Get(auth.HeaderAppSig)
	if appKey == "" || sig == "" {
		return auth.Principal{}, errkind.New(errkind.Authentication, "missing application credentials")
	}

	body, err := readBody(r)
	if err != nil {
		return auth.Principal{}, err
	}
	if err := keyring.Verify(appKey, sig, body); err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{AppKey: appKey}, nil
}

// withPrincipal stores the principal in the context and stamps the
// request log context with the authenticated application.
func withPrincipal(ctx context.Context, principal auth.Principal) context.Context {
	ctx = auth.WithPrincipal(ctx, principal)
	if principal.AppKey == "" {
		return ctx
	}
	if lc := logger.FromContext(ctx); lc != nil {
		ctx = logger.WithContext(ctx, lc.WithAppKey(principal.AppKey))
	}
	return ctx
}

// HMACAuth requires a valid x-app-key/x-app-sig pair. On success the
// principal is stored in the request context.
func HMACAuth(keyring *auth.Keyring) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := verifyHMAC(r, keyring)
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
		})
	}
}

// extractBearerToken extracts the token from a Bearer Authorization
// header.
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// BearerOrHMAC accepts either a bearer JWT or an HMAC signature. A
// present Authorization header is authoritative: a bad bearer token is
// rejected, not retried as HMAC. jwtService may be nil, which disables
// the bearer path entirely.
func BearerOrHMAC(jwtService *auth.JWTService, keyring *auth.Keyring) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := extractBearerToken(r); ok {
				if jwtService == nil {
					respond.ErrorMessage(w, errkind.Authentication, "bearer authentication is not enabled")
					return
				}
				claims, err := jwtService.ValidateToken(token)
				if err != nil {
					respond.ErrorMessage(w, errkind.Authentication, "invalid or expired token")
					return
				}
				principal := auth.Principal{UserID: claims.Subject, OrgID: claims.OrgID}
				next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
				return
			}

			principal, err := verifyHMAC(r, keyring)
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdmin blocks principals other than the registry application.
// Must run after HMACAuth.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				respond.ErrorMessage(w, errkind.Authentication, "authentication required")
				return
			}
			if !principal.IsAdmin() {
				respond.ErrorMessage(w, errkind.Authorization, "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
