package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picvault/picvault/internal/api"
	"github.com/picvault/picvault/internal/auth"
	repomemory "github.com/picvault/picvault/internal/repo/memory"
	"github.com/picvault/picvault/pkg/picvault"
	queuememory "github.com/picvault/picvault/pkg/picvault/queue/memory"
	storagememory "github.com/picvault/picvault/pkg/picvault/storage/memory"
	"github.com/picvault/picvault/pkg/picvault/thumbnail"
)

type testEnv struct {
	router http.Handler
	store  *storagememory.Backend
	queue  *queuememory.Queue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := storagememory.New()
	q := queuememory.New()
	svc, err := picvault.New(
		picvault.WithBlobStore(store),
		picvault.WithQueue(q),
		picvault.WithBucket("userimages"),
	)
	require.NoError(t, err)

	authSvc, err := auth.NewService(repomemory.New(), auth.Config{JWTSecret: "test-secret"}, nil)
	require.NoError(t, err)

	handler := api.NewHandler(svc, authSvc, nil)
	return &testEnv{router: handler.Routes(), store: store, queue: q}
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T, email, password string) {
	t.Helper()
	rec := e.doJSON(t, http.MethodPost, "/register", "", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := e.doJSON(t, http.MethodPost, "/login", "", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])
	return resp["token"]
}

func (e *testEnv) signup(t *testing.T, email string) string {
	t.Helper()
	e.register(t, email, "s3cret-pass")
	return e.login(t, email, "s3cret-pass")
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x * 30), B: uint8(y * 30), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (e *testEnv) uploadMultipart(t *testing.T, token, filename string, data []byte) string {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["key"])
	return resp["key"]
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doJSON(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "alice@example.com", "s3cret-pass")

	// Duplicate registration.
	rec := env.doJSON(t, http.MethodPost, "/register", "", map[string]string{
		"email": "alice@example.com", "password": "s3cret-pass",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Wrong password.
	rec = env.doJSON(t, http.MethodPost, "/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := env.login(t, "alice@example.com", "s3cret-pass")
	assert.NotEmpty(t, token)
}

func TestRegisterValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPost, "/register", "", map[string]string{
		"email": "not-an-email", "password": "s3cret-pass",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.doJSON(t, http.MethodPost, "/register", "", map[string]string{
		"email": "alice@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/images", "/image-url/some/key", "/view-token/some/key"} {
		rec := env.doJSON(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := env.doJSON(t, http.MethodPost, "/upload", "", map[string]string{"filename": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.doJSON(t, http.MethodGet, "/images", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadListAndDownloadURL(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com")

	key := env.uploadMultipart(t, token, "cat.png", testPNG(t))
	assert.True(t, strings.HasPrefix(key, "alice@example.com/"))

	rec := env.doJSON(t, http.MethodGet, "/images", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var images []picvault.Image
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &images))
	require.Len(t, images, 1)
	assert.Equal(t, key, images[0].Key)

	rec = env.doJSON(t, http.MethodGet, "/image-url/"+key, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var urlResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &urlResp))
	assert.Equal(t, "memory://"+key, urlResp["url"])
}

func TestUploadJSONBase64(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com")
	data := testPNG(t)

	rec := env.doJSON(t, http.MethodPost, "/upload", token, map[string]string{
		"filename": "cat.png",
		"file":     base64.StdEncoding.EncodeToString(data),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp["key"], "alice@example.com/"))
}

func TestUploadRejectsNonImage(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com")

	rec := env.doJSON(t, http.MethodPost, "/upload", token, map[string]string{
		"filename": "notes.txt",
		"file":     base64.StdEncoding.EncodeToString([]byte("plain text payload")),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCrossUserAccessForbidden(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.signup(t, "alice@example.com")
	bobToken := env.signup(t, "bob@example.com")

	key := env.uploadMultipart(t, aliceToken, "cat.png", testPNG(t))

	rec := env.doJSON(t, http.MethodGet, "/image-url/"+key, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doJSON(t, http.MethodGet, "/view-token/"+key, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doJSON(t, http.MethodDelete, "/images/"+key, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Bob's listing never shows Alice's objects.
	rec = env.doJSON(t, http.MethodGet, "/images", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var images []picvault.Image
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &images))
	assert.Empty(t, images)
}

func TestViewTokenFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com")
	data := testPNG(t)
	key := env.uploadMultipart(t, token, "cat.png", data)

	rec := env.doJSON(t, http.MethodGet, "/view-token/"+key, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	viewToken := resp["token"]
	require.NotEmpty(t, viewToken)

	// The view endpoint needs no session, only the token bound to the key.
	rec = env.doJSON(t, http.MethodGet, fmt.Sprintf("/view/%s?token=%s", key, viewToken), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, data, rec.Body.Bytes())

	// Missing or wrong token.
	rec = env.doJSON(t, http.MethodGet, "/view/"+key, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.doJSON(t, http.MethodGet, "/view/"+key+"?token=garbage", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestViewTokenDoesNotTransferBetweenKeys(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com")
	keyA := env.uploadMultipart(t, token, "cat.png", testPNG(t))
	keyB := env.uploadMultipart(t, token, "dog.png", testPNG(t))

	rec := env.doJSON(t, http.MethodGet, "/view-token/"+keyA, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = env.doJSON(t, http.MethodGet, fmt.Sprintf("/view/%s?token=%s", keyB, resp["token"]), "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteImage(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com")
	key := env.uploadMultipart(t, token, "cat.png", testPNG(t))

	rec := env.doJSON(t, http.MethodDelete, "/images/"+key, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.doJSON(t, http.MethodGet, "/images", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var images []picvault.Image
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &images))
	assert.Empty(t, images)

	// A second delete of the same key reports not found.
	rec = env.doJSON(t, http.MethodDelete, "/images/"+key, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAliasRoute(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com")
	key := env.uploadMultipart(t, token, "cat.png", testPNG(t))

	rec := env.doJSON(t, http.MethodDelete, "/delete/"+key, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUploadThenWorkerProducesThumbnail(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com")
	key := env.uploadMultipart(t, token, "cat.png", testPNG(t))

	worker := thumbnail.NewWorker(env.store, env.queue)
	require.NoError(t, worker.RunOnce(context.Background()))

	rec := env.doJSON(t, http.MethodGet, "/images", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var images []picvault.Image
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &images))
	require.Len(t, images, 2)

	var sawOriginal, sawThumb bool
	for _, img := range images {
		if img.Key == key {
			sawOriginal = true
			assert.False(t, img.IsThumbnail)
		}
		if img.IsThumbnail {
			sawThumb = true
			assert.Contains(t, img.Key, "thumbnail_")
		}
	}
	assert.True(t, sawOriginal)
	assert.True(t, sawThumb)
}

func TestUploadWorksWhenQueueDown(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com")
	env.queue.Fail = true

	key := env.uploadMultipart(t, token, "cat.png", testPNG(t))
	assert.NotEmpty(t, key)
	assert.Equal(t, 0, env.queue.Pending())
}
