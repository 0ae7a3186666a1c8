package retrieval

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blobfs "github.com/carbonledger/evidenced/pkg/blobstore/fs"
	"github.com/carbonledger/evidenced/pkg/catalog"
	"github.com/carbonledger/evidenced/pkg/errkind"
)

const helloDigest = "7509e5bda0c762d2bac7f90d758b5b2263fa01ccbc542ab5e3df163be08e6ca9"

func newTestService(t *testing.T) (*Service, *catalog.GORMStore) {
	t.Helper()

	store, err := catalog.New(&catalog.Config{
		SQLitePath: filepath.Join(t.TempDir(), "catalog.db"),
	})
	require.NoError(t, err)

	blobs, err := blobfs.New(blobfs.Config{
		Root:          t.TempDir(),
		PublicBaseURL: "http://localhost:3001/local-objects",
	})
	require.NoError(t, err)

	return New(store, blobs, nil), store
}

func seedArtifact(t *testing.T, store *catalog.GORMStore) *catalog.Artifact {
	t.Helper()
	artifact, _, err := store.CreateArtifactIfAbsent(context.Background(), &catalog.Artifact{
		Digest:    helloDigest,
		BucketKey: "sha256/75/09/" + helloDigest + "/e.pdf",
		Filename:  "e.pdf",
		Mime:      "application/pdf",
		SizeBytes: 12,
	})
	require.NoError(t, err)
	return artifact
}

func TestDownload(t *testing.T) {
	svc, store := newTestService(t)
	seedArtifact(t, store)

	url, err := svc.Download(context.Background(), helloDigest)
	require.NoError(t, err)
	assert.Contains(t, url, "sha256/75/09/"+helloDigest)
}

func TestDownloadUnknownDigest(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Download(context.Background(), strings.Repeat("ab", 32))
	assert.True(t, errkind.Is(err, errkind.NotFound))
}

func TestDownloadInvalidDigest(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Download(context.Background(), "nonsense")
	assert.True(t, errkind.Is(err, errkind.Validation))
}

func TestMeta(t *testing.T) {
	svc, store := newTestService(t)
	created := seedArtifact(t, store)

	// Digest lookup is case and prefix tolerant.
	artifact, err := svc.Meta(context.Background(), "0x"+strings.ToUpper(helloDigest))
	require.NoError(t, err)
	assert.Equal(t, created.ID, artifact.ID)
	assert.Equal(t, "e.pdf", artifact.Filename)
}

func TestVerifyExisting(t *testing.T) {
	svc, store := newTestService(t)
	artifact := seedArtifact(t, store)

	cid := "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
	require.NoError(t, store.SetArtifactCID(context.Background(), artifact.ID, &cid))

	result, err := svc.Verify(context.Background(), helloDigest)
	require.NoError(t, err)
	assert.True(t, result.Exists)
	require.NotNil(t, result.SizeBytes)
	assert.Equal(t, int64(12), *result.SizeBytes)
	require.NotNil(t, result.CIDv1)
	assert.Equal(t, cid, *result.CIDv1)
	require.NotNil(t, result.CreatedAt)
	assert.WithinDuration(t, time.Now(), *result.CreatedAt, time.Minute)
}

func TestVerifyMissing(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Verify(context.Background(), strings.Repeat("cd", 32))
	require.NoError(t, err)
	assert.False(t, result.Exists)
	assert.Nil(t, result.SizeBytes)
	assert.Nil(t, result.CIDv1)
}

func TestVerifyInvalidDigest(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Verify(context.Background(), "zz")
	assert.True(t, errkind.Is(err, errkind.Validation))
}
