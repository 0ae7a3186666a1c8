// Package errkind defines the error taxonomy shared by all evidenced
// components. Every failure that crosses a component boundary is classified
// into a Kind; the HTTP layer maps kinds to status codes in a single place.
package errkind

import (
	"errors"
	"fmt"
)

// Kind classifies an error by what the caller can do about it, not by which
// component produced it.
type Kind string

const (
	// Validation is malformed or out-of-range input. Not retriable.
	Validation Kind = "VALIDATION"

	// Authentication is bad or missing credentials. Not retriable.
	Authentication Kind = "AUTHENTICATION"

	// Authorization is good credentials but the wrong principal. Not retriable.
	Authorization Kind = "AUTHORIZATION"

	// NotFound is a missing session or artifact. Not retriable.
	NotFound Kind = "NOT_FOUND"

	// Conflict is a generic state conflict.
	Conflict Kind = "CONFLICT"

	// HashMismatch means the declared digest differs from the actual digest.
	// Fatal to the upload session: it transitions to ABORTED.
	HashMismatch Kind = "HASH_MISMATCH"

	// SessionExpired means the upload session TTL passed before complete.
	// The caller must re-init.
	SessionExpired Kind = "SESSION_EXPIRED"

	// FileTooLarge means the declared size exceeds the configured maximum.
	FileTooLarge Kind = "FILE_TOO_LARGE"

	// UnsupportedMime means the declared MIME type is not in the allow-list.
	UnsupportedMime Kind = "UNSUPPORTED_MIME"

	// Precondition means the operation needs a capability that is not
	// configured, e.g. pinning without a secondary replica.
	Precondition Kind = "PRECONDITION"

	// Storage is an object store failure. The client may retry complete.
	Storage Kind = "STORAGE"

	// IPFS is a secondary replica failure. Soft during complete: logged and
	// counted, never surfaced to the uploader.
	IPFS Kind = "IPFS_ERROR"

	// Internal is an uncategorized failure.
	Internal Kind = "INTERNAL"
)

// Error is the structured error carried across component boundaries.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps a cause. The cause participates in
// errors.Is/errors.As chains.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches structured details for the HTTP error body.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf returns the Kind of err, or Internal when err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// MessageOf returns the client-facing message of err without the kind
// prefix or wrapped cause. Falls back to err.Error() for plain errors.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// DetailsOf returns the structured details of err, or nil.
func DetailsOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// Retriable reports whether the client may usefully retry the operation.
func Retriable(err error) bool {
	switch KindOf(err) {
	case Storage, Internal:
		return true
	default:
		return false
	}
}
