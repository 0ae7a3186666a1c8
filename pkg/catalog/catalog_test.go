package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GORMStore {
	t.Helper()
	store, err := New(&Config{
		SQLitePath: filepath.Join(t.TempDir(), "catalog.db"),
	})
	require.NoError(t, err)
	return store
}

func testArtifact(digest string) *Artifact {
	return &Artifact{
		Digest:        digest,
		BucketKey:     "sha256/" + digest[0:2] + "/" + digest[2:4] + "/" + digest + "/e.pdf",
		Filename:      "e.pdf",
		Mime:          "application/pdf",
		SizeBytes:     12,
		UploaderOrgID: "org-42",
	}
}

const digestA = "7509e5bda0c762d2bac7f90d758b5b2263fa01ccbc542ab5e3df163be08e6ca9"
const digestB = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestCreateArtifactIfAbsent(t *testing.T) {
	store := newTestStore(t)

	created, isNew, err := store.CreateArtifactIfAbsent(context.Background(), testArtifact(digestA))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEmpty(t, created.ID)

	// Second insert with the same digest returns the existing row.
	dup, isNew, err := store.CreateArtifactIfAbsent(context.Background(), testArtifact(digestA))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, dup.ID)
}

func TestFindArtifactByDigest(t *testing.T) {
	store := newTestStore(t)

	created, _, err := store.CreateArtifactIfAbsent(context.Background(), testArtifact(digestA))
	require.NoError(t, err)

	found, err := store.FindArtifactByDigest(context.Background(), digestA)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = store.FindArtifactByDigest(context.Background(), digestB)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestGetArtifactNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetArtifact(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestSetArtifactCID(t *testing.T) {
	store := newTestStore(t)

	created, _, err := store.CreateArtifactIfAbsent(context.Background(), testArtifact(digestA))
	require.NoError(t, err)

	cid := "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
	require.NoError(t, store.SetArtifactCID(context.Background(), created.ID, &cid))

	got, err := store.GetArtifact(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CID)
	assert.Equal(t, cid, *got.CID)

	// Clearing the CID.
	require.NoError(t, store.SetArtifactCID(context.Background(), created.ID, nil))
	got, err = store.GetArtifact(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CID)

	assert.ErrorIs(t, store.SetArtifactCID(context.Background(), "missing", &cid), ErrArtifactNotFound)
}

func TestSetArtifactScanStatus(t *testing.T) {
	store := newTestStore(t)

	created, _, err := store.CreateArtifactIfAbsent(context.Background(), testArtifact(digestA))
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, store.SetArtifactScanStatus(context.Background(), created.ID, ScanClean, &now))

	got, err := store.GetArtifact(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, ScanClean, got.ScanStatus)
	require.NotNil(t, got.VerifiedAt)
}

func TestListArtifactsCreatedBefore(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.CreateArtifactIfAbsent(context.Background(), testArtifact(digestA))
	require.NoError(t, err)
	_, _, err = store.CreateArtifactIfAbsent(context.Background(), testArtifact(digestB))
	require.NoError(t, err)

	old, err := store.ListArtifactsCreatedBefore(context.Background(), time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, old)

	all, err := store.ListArtifactsCreatedBefore(context.Background(), time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	limited, err := store.ListArtifactsCreatedBefore(context.Background(), time.Now().Add(time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDeleteArtifact(t *testing.T) {
	store := newTestStore(t)

	created, _, err := store.CreateArtifactIfAbsent(context.Background(), testArtifact(digestA))
	require.NoError(t, err)

	require.NoError(t, store.DeleteArtifact(context.Background(), created.ID))
	_, err = store.GetArtifact(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	assert.ErrorIs(t, store.DeleteArtifact(context.Background(), created.ID), ErrArtifactNotFound)
}

func testSession(ttl time.Duration) *UploadSession {
	return &UploadSession{
		DeclaredDigest: digestA,
		Filename:       "e.pdf",
		Mime:           "application/pdf",
		DeclaredSize:   12,
		StagingKey:     "staging/" + digestA,
		AppKey:         "registry",
		ExpiresAt:      time.Now().Add(ttl),
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateSession(context.Background(), testSession(5*time.Minute))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	session, err := store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, SessionPending, session.Status)
	assert.False(t, session.Expired(time.Now()))

	require.NoError(t, store.UpdateSessionStatus(context.Background(), id, SessionPending, SessionComplete, nil))

	session, err = store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, SessionComplete, session.Status)
}

func TestSessionCompletedAtFrozen(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateSession(context.Background(), testSession(5*time.Minute))
	require.NoError(t, err)

	completed := time.Now()
	require.NoError(t, store.UpdateSessionStatus(context.Background(), id, SessionPending, SessionComplete, &completed))

	session, err := store.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, session.CompletedAt)
	first := *session.CompletedAt

	// A repeated finalization attempt must not move completedAt.
	later := completed.Add(time.Hour)
	err = store.UpdateSessionStatus(context.Background(), id, SessionPending, SessionComplete, &later)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	session, err = store.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, session.CompletedAt)
	assert.WithinDuration(t, first, *session.CompletedAt, time.Second)
}

func TestSessionGuardedTransition(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateSession(context.Background(), testSession(5*time.Minute))
	require.NoError(t, err)

	require.NoError(t, store.UpdateSessionStatus(context.Background(), id, SessionPending, SessionAborted, nil))

	// Terminal sessions never move again.
	err = store.UpdateSessionStatus(context.Background(), id, SessionPending, SessionComplete, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = store.UpdateSessionStatus(context.Background(), id, SessionAborted, SessionComplete, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSessionTransitionMissing(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateSessionStatus(context.Background(), "missing", SessionPending, SessionComplete, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionExpiry(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateSession(context.Background(), testSession(-time.Minute))
	require.NoError(t, err)

	session, err := store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, session.Expired(time.Now()))

	require.NoError(t, store.UpdateSessionStatus(context.Background(), id, SessionPending, SessionExpired, nil))
}

func TestLinkSessionArtifact(t *testing.T) {
	store := newTestStore(t)

	artifact, _, err := store.CreateArtifactIfAbsent(context.Background(), testArtifact(digestA))
	require.NoError(t, err)

	id, err := store.CreateSession(context.Background(), testSession(5*time.Minute))
	require.NoError(t, err)

	require.NoError(t, store.LinkSessionArtifact(context.Background(), id, artifact.ID))

	session, err := store.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, session.ArtifactID)
	assert.Equal(t, artifact.ID, *session.ArtifactID)
}
