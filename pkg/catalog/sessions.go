package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreateSession inserts a new upload session. An empty ID gets a fresh
// UUID; the generated ID is returned.
func (s *GORMStore) CreateSession(ctx context.Context, session *UploadSession) (string, error) {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.Status == "" {
		session.Status = SessionPending
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return "", err
	}
	return session.ID, nil
}

// GetSession retrieves an upload session by ID.
func (s *GORMStore) GetSession(ctx context.Context, id string) (*UploadSession, error) {
	return getByField[UploadSession](s.db, ctx, "id", id, ErrSessionNotFound)
}

// UpdateSessionStatus moves a session from one status to another,
// optionally stamping completedAt. The update is guarded: the row only
// changes when its current status equals from, so two racing finalizers
// cannot both win and terminal sessions stay frozen. Returns
// ErrInvalidTransition when the transition is not allowed or the session
// is no longer in the expected state.
func (s *GORMStore) UpdateSessionStatus(ctx context.Context, id string, from, to SessionStatus, completedAt *time.Time) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}

	updates := map[string]any{"status": to}
	if completedAt != nil {
		updates["completed_at"] = completedAt
	}

	result := s.db.WithContext(ctx).
		Model(&UploadSession{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish a missing session from a lost race.
		if _, err := s.GetSession(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// LinkSessionArtifact records which artifact a session produced.
func (s *GORMStore) LinkSessionArtifact(ctx context.Context, id, artifactID string) error {
	result := s.db.WithContext(ctx).
		Model(&UploadSession{}).
		Where("id = ?", id).
		Update("artifact_id", artifactID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session row. Used by tests and retention
// tooling; normal operation keeps terminal sessions for audit.
func (s *GORMStore) DeleteSession(ctx context.Context, id string) error {
	return deleteByField[UploadSession](s.db, ctx, "id", id, ErrSessionNotFound)
}
