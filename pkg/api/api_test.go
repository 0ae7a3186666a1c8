package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonledger/evidenced/internal/logger"
	"github.com/carbonledger/evidenced/pkg/admin"
	"github.com/carbonledger/evidenced/pkg/api/middleware"
	"github.com/carbonledger/evidenced/pkg/auth"
	blobfs "github.com/carbonledger/evidenced/pkg/blobstore/fs"
	"github.com/carbonledger/evidenced/pkg/catalog"
	"github.com/carbonledger/evidenced/pkg/digest"
	"github.com/carbonledger/evidenced/pkg/ingest"
	"github.com/carbonledger/evidenced/pkg/retrieval"
)

const helloDigest = "7509e5bda0c762d2bac7f90d758b5b2263fa01ccbc542ab5e3df163be08e6ca9"
const tokenSecret = "0123456789abcdef0123456789abcdef"

type testAPI struct {
	router  http.Handler
	keyring *auth.Keyring
}

func newTestAPI(t *testing.T, publicRead bool) *testAPI {
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

	keyring, err := auth.ParseKeyring("registry:registry-secret,verra:verra-secret")
	require.NoError(t, err)

	tokens, err := auth.NewUploadTokenIssuer(tokenSecret, 5*time.Minute)
	require.NoError(t, err)

	hasher := digest.NewEngine(nil)

	ingestSvc, err := ingest.New(ingest.Config{
		Catalog: store,
		Blobs:   blobs,
		Hasher:  hasher,
		Tokens:  tokens,
	})
	require.NoError(t, err)

	router := NewRouter(Deps{
		Ingest:       ingestSvc,
		Retrieval:    retrieval.New(store, blobs, nil),
		Admin:        admin.New(store, blobs, nil, hasher),
		Keyring:      keyring,
		PublicRead:   publicRead,
		LocalObjects: blobs,
	})

	return &testAPI{router: router, keyring: keyring}
}

// signedRequest builds a request carrying a valid HMAC signature for the
// given app.
func (a *testAPI) signedRequest(t *testing.T, method, path, app string, body []byte) *http.Request {
	t.Helper()

	sig, err := a.keyring.Sign(app, body)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderAppKey, app)
	req.Header.Set(auth.HeaderAppSig, sig)
	return req
}

func (a *testAPI) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

type initResponse struct {
	UploadID  string `json:"uploadId"`
	Token     string `json:"token"`
	PutURL    string `json:"putUrl"`
	BucketKey string `json:"bucketKey"`
}

type completeResponse struct {
	ArtifactID  string `json:"artifactId"`
	SHA256Hex   string `json:"sha256Hex"`
	SizeBytes   int64  `json:"sizeBytes"`
	Mime        string `json:"mime"`
	DownloadURL string `json:"downloadUrl"`
}

type errorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

// upload drives the full init/PUT/complete flow through the router.
func (a *testAPI) upload(t *testing.T, app, payload string) completeResponse {
	t.Helper()

	initBody, _ := json.Marshal(map[string]any{
		"filename": "evidence.pdf",
		"mimeHint": "application/pdf",
	})
	rec := a.do(a.signedRequest(t, http.MethodPost, "/v1/upload/init", app, initBody))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	initRes := decode[initResponse](t, rec)
	require.NotEmpty(t, initRes.PutURL)

	putURL, err := url.Parse(initRes.PutURL)
	require.NoError(t, err)
	putReq := httptest.NewRequest(http.MethodPut, putURL.Path, strings.NewReader(payload))
	putReq.Header.Set("Content-Type", "application/pdf")
	rec = a.do(putReq)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	completeBody, _ := json.Marshal(map[string]any{
		"uploadId": initRes.UploadID,
		"token":    initRes.Token,
	})
	rec = a.do(a.signedRequest(t, http.MethodPost, "/v1/upload/complete", app, completeBody))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[completeResponse](t, rec)
}

func TestUploadFlow(t *testing.T) {
	api := newTestAPI(t, false)

	result := api.upload(t, "verra", "hello world!")
	assert.Equal(t, helloDigest, result.SHA256Hex)
	assert.Equal(t, int64(12), result.SizeBytes)
	assert.Equal(t, "application/pdf", result.Mime)
	assert.NotEmpty(t, result.DownloadURL)
}

func TestInitRequiresSignature(t *testing.T) {
	api := newTestAPI(t, false)

	body, _ := json.Marshal(map[string]any{"filename": "e.pdf"})
	req := httptest.NewRequest(http.MethodPost, "/v1/upload/init", bytes.NewReader(body))
	rec := api.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTHENTICATION", decode[errorResponse](t, rec).Code)
}

func TestInitRejectsBadSignature(t *testing.T) {
	api := newTestAPI(t, false)

	body, _ := json.Marshal(map[string]any{"filename": "e.pdf"})
	req := httptest.NewRequest(http.MethodPost, "/v1/upload/init", bytes.NewReader(body))
	req.Header.Set(auth.HeaderAppKey, "verra")
	req.Header.Set(auth.HeaderAppSig, strings.Repeat("00", 32))
	rec := api.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInitRejectsUnsupportedMime(t *testing.T) {
	api := newTestAPI(t, false)

	body, _ := json.Marshal(map[string]any{
		"filename": "e.exe",
		"mimeHint": "application/x-msdownload",
	})
	rec := api.do(api.signedRequest(t, http.MethodPost, "/v1/upload/init", "verra", body))

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "UNSUPPORTED_MIME", decode[errorResponse](t, rec).Code)
}

func TestInitRejectsOversizedDeclaration(t *testing.T) {
	api := newTestAPI(t, false)

	body, _ := json.Marshal(map[string]any{
		"filename":  "e.pdf",
		"sizeBytes": int64(1) << 40,
	})
	rec := api.do(api.signedRequest(t, http.MethodPost, "/v1/upload/init", "verra", body))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCompleteUnknownSession(t *testing.T) {
	api := newTestAPI(t, false)

	body, _ := json.Marshal(map[string]any{"uploadId": "nope", "token": "nope"})
	rec := api.do(api.signedRequest(t, http.MethodPost, "/v1/upload/complete", "verra", body))

	// The forged token fails before the session lookup.
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDownloadRedirects(t *testing.T) {
	api := newTestAPI(t, true)
	api.upload(t, "verra", "hello world!")

	rec := api.do(httptest.NewRequest(http.MethodGet, "/v1/artifacts/"+helloDigest, nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/local-objects/sha256/")
}

func TestDownloadRequiresAuthWithoutPublicRead(t *testing.T) {
	api := newTestAPI(t, false)
	api.upload(t, "verra", "hello world!")

	rec := api.do(httptest.NewRequest(http.MethodGet, "/v1/artifacts/"+helloDigest, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(api.signedRequest(t, http.MethodGet, "/v1/artifacts/"+helloDigest, "verra", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestDownloadInvalidDigest(t *testing.T) {
	api := newTestAPI(t, true)

	rec := api.do(httptest.NewRequest(http.MethodGet, "/v1/artifacts/not-a-digest", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", decode[errorResponse](t, rec).Code)
}

func TestMeta(t *testing.T) {
	api := newTestAPI(t, false)
	result := api.upload(t, "verra", "hello world!")

	rec := api.do(api.signedRequest(t, http.MethodGet, "/v1/artifacts/"+helloDigest+"/meta", "verra", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	meta := decode[map[string]any](t, rec)
	assert.Equal(t, result.ArtifactID, meta["artifactId"])
	assert.Equal(t, helloDigest, meta["sha256Hex"])
	assert.Equal(t, "PENDING", meta["scanStatus"])
}

func TestMetaUnknownDigest(t *testing.T) {
	api := newTestAPI(t, false)

	rec := api.do(api.signedRequest(t, http.MethodGet, "/v1/artifacts/"+strings.Repeat("ab", 32)+"/meta", "verra", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyIsUnauthenticated(t *testing.T) {
	api := newTestAPI(t, false)
	api.upload(t, "verra", "hello world!")

	rec := api.do(httptest.NewRequest(http.MethodGet, "/v1/artifacts/"+helloDigest+"/verify", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	probe := decode[map[string]any](t, rec)
	assert.Equal(t, true, probe["exists"])

	rec = api.do(httptest.NewRequest(http.MethodGet, "/v1/artifacts/"+strings.Repeat("cd", 32)+"/verify", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	probe = decode[map[string]any](t, rec)
	assert.Equal(t, false, probe["exists"])
}

func TestAdminRequiresRegistryKey(t *testing.T) {
	api := newTestAPI(t, false)

	body, _ := json.Marshal(map[string]any{"sha256": helloDigest})
	rec := api.do(api.signedRequest(t, http.MethodPost, "/v1/admin/rescan", "verra", body))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AUTHORIZATION", decode[errorResponse](t, rec).Code)
}

func TestAdminRescan(t *testing.T) {
	api := newTestAPI(t, false)
	api.upload(t, "verra", "hello world!")

	body, _ := json.Marshal(map[string]any{"sha256": helloDigest})
	rec := api.do(api.signedRequest(t, http.MethodPost, "/v1/admin/rescan", "registry", body))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[map[string]any](t, rec)
	assert.Equal(t, "CLEAN", result["scanStatus"])
}

func TestAdminPinWithoutReplica(t *testing.T) {
	api := newTestAPI(t, false)
	api.upload(t, "verra", "hello world!")

	body, _ := json.Marshal(map[string]any{"sha256": helloDigest})
	rec := api.do(api.signedRequest(t, http.MethodPost, "/v1/admin/ipfs/pin", "registry", body))

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "PRECONDITION", decode[errorResponse](t, rec).Code)
}

func TestAdminUnpinWithoutCIDIsNoop(t *testing.T) {
	api := newTestAPI(t, false)
	api.upload(t, "verra", "hello world!")

	body, _ := json.Marshal(map[string]any{"sha256": helloDigest})
	rec := api.do(api.signedRequest(t, http.MethodPost, "/v1/admin/ipfs/unpin", "registry", body))

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAdminSweepDryRun(t *testing.T) {
	api := newTestAPI(t, false)
	api.upload(t, "verra", "hello world!")

	body, _ := json.Marshal(map[string]any{
		"before": time.Now().Add(time.Hour).Format(time.RFC3339),
		"dryRun": true,
	})
	rec := api.do(api.signedRequest(t, http.MethodPost, "/v1/admin/retention/sweep", "registry", body))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[map[string]any](t, rec)
	assert.Equal(t, true, result["dryRun"])
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t, false)

	rec := api.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLocalObjectRoundtrip(t *testing.T) {
	api := newTestAPI(t, false)

	key := "/local-objects/sha256/ab/cd/test/file.pdf"
	putReq := httptest.NewRequest(http.MethodPut, key, strings.NewReader("payload"))
	rec := api.do(putReq)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(httptest.NewRequest(http.MethodGet, key, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "payload", string(body))
}

func TestLocalObjectMissing(t *testing.T) {
	api := newTestAPI(t, false)

	rec := api.do(httptest.NewRequest(http.MethodGet, "/local-objects/sha256/no/pe/x/y.pdf", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestLogContextCarriesAppKey(t *testing.T) {
	api := newTestAPI(t, false)

	var lc *logger.LogContext
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lc = logger.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := requestLogger(middleware.HMACAuth(api.keyring)(inner))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, api.signedRequest(t, http.MethodPost, "/v1/upload/init", "registry", []byte("{}")))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, lc)
	assert.Equal(t, "registry", lc.AppKey)
	assert.Equal(t, "192.0.2.1", lc.ClientIP)
}
