// Package catalog is the relational system of record for artifacts and
// upload sessions. Object stores hold the bytes; the catalog holds
// everything the service knows about them.
package catalog

import (
	"errors"
	"time"
)

// Domain errors returned by catalog operations.
var (
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrSessionNotFound   = errors.New("upload session not found")
	ErrDuplicateDigest   = errors.New("artifact with this digest already exists")
	ErrInvalidTransition = errors.New("invalid session status transition")
)

// SessionStatus is the lifecycle state of an upload session.
type SessionStatus string

const (
	// SessionPending is the initial state: a client holds a presigned URL
	// and the payload has not been finalized.
	SessionPending SessionStatus = "PENDING"

	// SessionComplete is terminal: the payload was verified and an
	// artifact exists.
	SessionComplete SessionStatus = "COMPLETE"

	// SessionAborted is terminal: finalization failed, e.g. the uploaded
	// bytes did not match the declared digest.
	SessionAborted SessionStatus = "ABORTED"

	// SessionExpired is terminal: the session TTL elapsed before
	// finalization.
	SessionExpired SessionStatus = "EXPIRED"
)

// validTransitions guards session status updates. Only PENDING sessions
// move; terminal states never change.
var validTransitions = map[SessionStatus]map[SessionStatus]bool{
	SessionPending: {
		SessionComplete: true,
		SessionAborted:  true,
		SessionExpired:  true,
	},
}

// CanTransition reports whether a session may move from one status to
// another.
func CanTransition(from, to SessionStatus) bool {
	return validTransitions[from][to]
}

// ScanStatus is the content-scan state of an artifact, independent of the
// upload lifecycle. New artifacts start PENDING; admin rescans move them
// to CLEAN.
type ScanStatus string

const (
	ScanPending  ScanStatus = "PENDING"
	ScanClean    ScanStatus = "CLEAN"
	ScanInfected ScanStatus = "INFECTED"
)

// Artifact is a verified, content-addressed evidence document.
//
// Digest carries a unique index: one artifact per payload, regardless of
// how many times it is uploaded.
type Artifact struct {
	ID        string `gorm:"primaryKey"`
	Digest    string `gorm:"uniqueIndex;not null"`
	BucketKey string `gorm:"not null"`
	Filename  string `gorm:"not null"`
	Mime      string `gorm:"not null"`
	SizeBytes int64  `gorm:"not null"`

	// CID is the secondary-replica content identifier. Nil until a pin
	// succeeds. The default naming strategy would split the initialism
	// into c_id, so the column is pinned explicitly.
	CID *string `gorm:"column:cid"`

	// Provenance, set at first ingestion and informational only.
	UploaderOrgID string
	ProjectID     string
	IssuanceID    string
	MetaJSON      string

	ScanStatus ScanStatus `gorm:"default:PENDING"`

	// VerifiedAt is the time of the digest check that produced or last
	// re-verified this record.
	VerifiedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UploadSession tracks one init-to-complete upload attempt.
type UploadSession struct {
	ID string `gorm:"primaryKey"`

	// DeclaredDigest is the client's claimed SHA-256, empty when the
	// client did not declare one up front.
	DeclaredDigest string

	Filename     string `gorm:"not null"`
	Mime         string `gorm:"not null"`
	DeclaredSize int64
	StagingKey   string        `gorm:"not null"`
	Status       SessionStatus `gorm:"not null;index"`
	AppKey       string        `gorm:"not null"`

	// Provenance carried into the eventual artifact.
	UploaderOrgID string
	ProjectID     string
	IssuanceID    string
	MetaJSON      string

	// ArtifactID links the session to its artifact once COMPLETE.
	ArtifactID *string

	ExpiresAt   time.Time `gorm:"not null"`
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Expired reports whether the session TTL has elapsed at the given time.
func (s *UploadSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// AllModels returns every model for schema migration.
func AllModels() []any {
	return []any{
		&Artifact{},
		&UploadSession{},
	}
}
