package admin

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonledger/evidenced/pkg/blobstore"
	blobfs "github.com/carbonledger/evidenced/pkg/blobstore/fs"
	"github.com/carbonledger/evidenced/pkg/catalog"
	"github.com/carbonledger/evidenced/pkg/digest"
	"github.com/carbonledger/evidenced/pkg/errkind"
	"github.com/carbonledger/evidenced/pkg/replica"
)

const helloDigest = "7509e5bda0c762d2bac7f90d758b5b2263fa01ccbc542ab5e3df163be08e6ca9"
const testCID = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"

type fakePinner struct {
	cid    string
	err    error
	unpins []string
}

func (p *fakePinner) Pin(ctx context.Context, name string, r io.Reader) (replica.PinResult, error) {
	if p.err != nil {
		return replica.PinResult{}, p.err
	}
	n, _ := io.Copy(io.Discard, r)
	return replica.PinResult{CID: p.cid, Size: n}, nil
}

func (p *fakePinner) Unpin(ctx context.Context, cidStr string) error {
	if p.err != nil {
		return p.err
	}
	p.unpins = append(p.unpins, cidStr)
	return nil
}

func (p *fakePinner) GatewayURL(cidStr string) string { return "https://ipfs.io/ipfs/" + cidStr }

type testEnv struct {
	svc   *Service
	store *catalog.GORMStore
	blobs blobstore.Store
}

func newTestEnv(t *testing.T, pinner replica.Pinner) *testEnv {
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

	return &testEnv{
		svc:   New(store, blobs, pinner, digest.NewEngine(nil)),
		store: store,
		blobs: blobs,
	}
}

// seed stores the payload and its catalog row together, the way a
// completed upload would.
func (e *testEnv) seed(t *testing.T, payload string) *catalog.Artifact {
	t.Helper()

	hashed := digest.NewEngine(nil).HashBuffer([]byte(payload))
	key := "sha256/" + hashed.SHA256Hex[0:2] + "/" + hashed.SHA256Hex[2:4] + "/" + hashed.SHA256Hex + "/e.pdf"

	require.NoError(t, e.blobs.Put(context.Background(), key, strings.NewReader(payload), hashed.SizeBytes, "application/pdf"))

	artifact, _, err := e.store.CreateArtifactIfAbsent(context.Background(), &catalog.Artifact{
		Digest:    hashed.SHA256Hex,
		BucketKey: key,
		Filename:  "e.pdf",
		Mime:      "application/pdf",
		SizeBytes: hashed.SizeBytes,
	})
	require.NoError(t, err)
	return artifact
}

func TestSweepDryRun(t *testing.T) {
	env := newTestEnv(t, nil)
	artifact := env.seed(t, "hello world!")

	result, err := env.svc.Sweep(context.Background(), time.Now().Add(time.Hour), true)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, artifact.ID, result.Artifacts[0].ArtifactID)
	require.NotNil(t, result.ArtifactsToDelete)
	assert.Equal(t, 1, *result.ArtifactsToDelete)
	assert.Nil(t, result.ArtifactsDeleted)

	// Nothing was touched.
	_, err = env.store.GetArtifact(context.Background(), artifact.ID)
	assert.NoError(t, err)
	_, err = env.blobs.Head(context.Background(), artifact.BucketKey)
	assert.NoError(t, err)
}

func TestSweepDeletes(t *testing.T) {
	env := newTestEnv(t, nil)
	artifact := env.seed(t, "hello world!")

	result, err := env.svc.Sweep(context.Background(), time.Now().Add(time.Hour), false)
	require.NoError(t, err)
	require.Len(t, result.Artifacts, 1)
	require.NotNil(t, result.ArtifactsDeleted)
	assert.Equal(t, 1, *result.ArtifactsDeleted)

	_, err = env.store.GetArtifact(context.Background(), artifact.ID)
	assert.ErrorIs(t, err, catalog.ErrArtifactNotFound)
	_, err = env.blobs.Head(context.Background(), artifact.BucketKey)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestSweepMissingObjectStillDeletesRow(t *testing.T) {
	env := newTestEnv(t, nil)
	artifact := env.seed(t, "hello world!")

	// Bytes already gone; delete is idempotent so the row still goes.
	require.NoError(t, env.blobs.Delete(context.Background(), artifact.BucketKey))

	result, err := env.svc.Sweep(context.Background(), time.Now().Add(time.Hour), false)
	require.NoError(t, err)
	assert.Len(t, result.Artifacts, 1)
}

func TestSweepCutoffExcludesNewArtifacts(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "hello world!")

	result, err := env.svc.Sweep(context.Background(), time.Now().Add(-time.Hour), false)
	require.NoError(t, err)
	assert.Empty(t, result.Artifacts)
}

func TestPin(t *testing.T) {
	pinner := &fakePinner{cid: testCID}
	env := newTestEnv(t, pinner)
	artifact := env.seed(t, "hello world!")

	result, err := env.svc.Pin(context.Background(), helloDigest)
	require.NoError(t, err)
	assert.Equal(t, testCID, result.CIDv1)
	assert.Equal(t, "https://ipfs.io/ipfs/"+testCID, result.GatewayURL)

	got, err := env.store.GetArtifact(context.Background(), artifact.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CID)
	assert.Equal(t, testCID, *got.CID)
}

func TestPinAlreadyPinnedIsNoop(t *testing.T) {
	pinner := &fakePinner{cid: "different-would-fail-validation"}
	env := newTestEnv(t, pinner)
	artifact := env.seed(t, "hello world!")

	cid := testCID
	require.NoError(t, env.store.SetArtifactCID(context.Background(), artifact.ID, &cid))

	result, err := env.svc.Pin(context.Background(), helloDigest)
	require.NoError(t, err)
	assert.Equal(t, testCID, result.CIDv1)
}

func TestPinWithoutReplica(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "hello world!")

	_, err := env.svc.Pin(context.Background(), helloDigest)
	assert.True(t, errkind.Is(err, errkind.Precondition))
}

func TestPinUnknownDigest(t *testing.T) {
	env := newTestEnv(t, &fakePinner{cid: testCID})

	_, err := env.svc.Pin(context.Background(), strings.Repeat("ab", 32))
	assert.True(t, errkind.Is(err, errkind.NotFound))
}

func TestPinReplicaFailure(t *testing.T) {
	env := newTestEnv(t, &fakePinner{err: errors.New("replica down")})
	env.seed(t, "hello world!")

	_, err := env.svc.Pin(context.Background(), helloDigest)
	assert.True(t, errkind.Is(err, errkind.IPFS))
}

func TestUnpin(t *testing.T) {
	pinner := &fakePinner{cid: testCID}
	env := newTestEnv(t, pinner)
	artifact := env.seed(t, "hello world!")

	cid := testCID
	require.NoError(t, env.store.SetArtifactCID(context.Background(), artifact.ID, &cid))

	result, err := env.svc.Unpin(context.Background(), helloDigest)
	require.NoError(t, err)
	require.NotNil(t, result.CIDv1)
	assert.Equal(t, testCID, *result.CIDv1)
	assert.Equal(t, []string{testCID}, pinner.unpins)

	got, err := env.store.GetArtifact(context.Background(), artifact.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CID)
}

func TestUnpinNoCIDIsNoop(t *testing.T) {
	// No pinner configured either: the null-CID short circuit wins.
	env := newTestEnv(t, nil)
	env.seed(t, "hello world!")

	result, err := env.svc.Unpin(context.Background(), helloDigest)
	require.NoError(t, err)
	assert.Nil(t, result.CIDv1)
}

func TestRescanClean(t *testing.T) {
	env := newTestEnv(t, nil)
	artifact := env.seed(t, "hello world!")

	result, err := env.svc.Rescan(context.Background(), helloDigest)
	require.NoError(t, err)
	assert.Equal(t, helloDigest, result.SHA256Hex)
	assert.Equal(t, string(catalog.ScanClean), result.ScanStatus)

	got, err := env.store.GetArtifact(context.Background(), artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.ScanClean, got.ScanStatus)
	require.NotNil(t, got.VerifiedAt)
}

func TestRescanDetectsCorruption(t *testing.T) {
	env := newTestEnv(t, nil)
	artifact := env.seed(t, "hello world!")

	// Corrupt the stored bytes behind the catalog's back.
	require.NoError(t, env.blobs.Put(context.Background(), artifact.BucketKey, strings.NewReader("tampered"), 8, ""))

	_, err := env.svc.Rescan(context.Background(), helloDigest)
	require.True(t, errkind.Is(err, errkind.Storage))
	details := errkind.DetailsOf(err)
	assert.Equal(t, helloDigest, details["expected"])

	// Scan status is untouched on mismatch.
	got, dbErr := env.store.GetArtifact(context.Background(), artifact.ID)
	require.NoError(t, dbErr)
	assert.NotEqual(t, catalog.ScanClean, got.ScanStatus)
}

func TestRescanMissingBytes(t *testing.T) {
	env := newTestEnv(t, nil)
	artifact := env.seed(t, "hello world!")
	require.NoError(t, env.blobs.Delete(context.Background(), artifact.BucketKey))

	_, err := env.svc.Rescan(context.Background(), helloDigest)
	assert.True(t, errkind.Is(err, errkind.Storage))
}
