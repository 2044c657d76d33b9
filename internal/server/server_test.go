package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundood999/agentic-ai-backend/internal/intake"
	"github.com/fundood999/agentic-ai-backend/internal/logger"
	"github.com/fundood999/agentic-ai-backend/internal/metrics"
	"github.com/fundood999/agentic-ai-backend/internal/storage/storagetest"
	"github.com/fundood999/agentic-ai-backend/internal/upload"
)

var fixedNow = time.Date(2026, 10, 15, 9, 30, 0, 123e6, time.UTC)

type testServer struct {
	*Server
	backend *storagetest.Memory
	reg     *prometheus.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	backend := storagetest.NewMemory("image-upload-codecoast")
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := logger.Discard()

	svc := upload.NewService(upload.Deps{
		Backend:   backend,
		Allocator: intake.NewAllocator(),
		Logger:    log,
		Metrics:   m,
	})

	return &testServer{
		Server: New(Options{
			Proxied:   svc.Proxied,
			Presigned: svc.Presigned,
			Logger:    log,
			Metrics:   m,
			Gatherer:  reg,
			Now:       func() time.Time { return fixedNow },
		}),
		backend: backend,
		reg:     reg,
	}
}

type formPart struct {
	name        string
	fileName    string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, parts ...formPart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		if p.fileName != "" {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.name, p.fileName))
		} else {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, p.name))
		}
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func jpegPart(name string, size int) formPart {
	return formPart{name: "file", fileName: name, contentType: "image/jpeg", data: bytes.Repeat([]byte{0xff}, size)}
}

func (ts *testServer) do(t *testing.T, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, parts ...formPart) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, parts...)
	return ts.do(t, http.MethodPost, "/upload-image", body, ct)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1, "error body must carry only the error field")
	return body["error"].(string)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Server is running", body.Status)
	assert.Equal(t, "2026-10-15T09:30:00.123Z", body.Timestamp)
}

func TestUploadImage(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.upload(t, jpegPart("cat.jpg", 51200))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body uploadImageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Upload successful", body.Message)
	assert.Regexp(t, `^\d+-cat\.jpg$`, body.FileName)
	assert.Equal(t, int64(51200), body.Size)
	assert.Equal(t, map[string]any{}, body.Metadata)

	obj, ok := ts.backend.Object(body.FileName)
	require.True(t, ok)
	assert.Len(t, obj.Data, 51200)
	assert.Equal(t, "image/jpg", obj.ContentType)
}

func TestUploadImageWithMetadata(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.upload(t,
		formPart{name: "metadata", data: []byte(`{"album":"pets","tags":["cat"]}`)},
		formPart{name: "file", fileName: "cat.jpg", contentType: "image/jpg", data: []byte{0xff, 0xd8, 0xff}},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body uploadImageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pets", body.Metadata["album"])
	assert.Equal(t, []any{"cat"}, body.Metadata["tags"])
	assert.Equal(t, int64(3), body.Size)
}

func TestUploadImageRejected(t *testing.T) {
	tests := []struct {
		name  string
		parts []formPart
		msg   string
	}{
		{
			name:  "png",
			parts: []formPart{{name: "file", fileName: "cat.png", contentType: "image/png", data: []byte("png")}},
			msg:   intake.MsgNotJPEG,
		},
		{
			name:  "no content type",
			parts: []formPart{{name: "file", fileName: "cat.jpg", data: []byte("jpg")}},
			msg:   intake.MsgNotJPEG,
		},
		{
			name:  "too large",
			parts: []formPart{jpegPart("big.jpg", intake.MaxImageBytes+1)},
			msg:   intake.MsgTooLarge,
		},
		{
			name:  "no file",
			parts: []formPart{{name: "metadata", data: []byte(`{}`)}},
			msg:   intake.MsgNoFile,
		},
		{
			name:  "file sent as plain field",
			parts: []formPart{{name: "file", data: []byte("jpg")}},
			msg:   intake.MsgNoFile,
		},
		{
			name:  "malformed metadata",
			parts: []formPart{jpegPart("cat.jpg", 10), {name: "metadata", data: []byte(`{"album":`)}},
			msg:   intake.MsgBadMetadata,
		},
		{
			name:  "metadata not an object",
			parts: []formPart{jpegPart("cat.jpg", 10), {name: "metadata", data: []byte(`["a"]`)}},
			msg:   intake.MsgBadMetadata,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			rec := ts.upload(t, tt.parts...)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.msg, decodeError(t, rec))

			puts, _ := ts.backend.Calls()
			assert.Zero(t, puts, "no bucket write may happen")
		})
	}
}

func TestUploadImageAtLimit(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.upload(t, jpegPart("max.jpg", intake.MaxImageBytes))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadImageNotMultipart(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/upload-image", bytes.NewBufferString(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, intake.MsgNoFile, decodeError(t, rec))
}

func TestUploadImageBackendFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.PutErr = errors.New("open /secrets/key.json: permission denied")

	rec := ts.upload(t, jpegPart("cat.jpg", 100))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, intake.MsgUploadFailed, decodeError(t, rec))
	assert.NotContains(t, rec.Body.String(), "secrets")
}

func TestGetUploadURL(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/get-upload-url",
		bytes.NewBufferString(`{"fileName":"cat.jpg","contentType":"image/jpeg"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body getUploadURLResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Regexp(t, `^\d+-cat\.jpg$`, body.FileName)

	u, err := url.Parse(body.UploadURL)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u.Path, "/"+body.FileName))
	assert.True(t, strings.HasSuffix(body.PublicURL, "/"+body.FileName))
	assert.Equal(t, "900", u.Query().Get("X-Goog-Expires"))
	assert.Equal(t, "PUT", u.Query().Get("X-Goog-Method"))
	assert.Equal(t, "image/jpeg", u.Query().Get("X-Goog-Content-Type"))

	assert.Zero(t, ts.backend.Len(), "a grant does not create the object")
}

func TestGetUploadURLRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"missing fileName", `{"contentType":"image/jpeg"}`, intake.MsgFileNameRequired},
		{"empty fileName", `{"fileName":""}`, intake.MsgFileNameRequired},
		{"empty body", ``, intake.MsgFileNameRequired},
		{"malformed json", `{"fileName":`, intake.MsgBadRequestBody},
		{"wrong type", `{"fileName":42}`, intake.MsgBadRequestBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			rec := ts.do(t, http.MethodPost, "/get-upload-url", bytes.NewBufferString(tt.body), "application/json")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.msg, decodeError(t, rec))

			_, signs := ts.backend.Calls()
			assert.Zero(t, signs)
		})
	}
}

func TestGetUploadURLSigningFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.SignErr = errors.New("storage: unable to detect default GoogleAccessID")

	rec := ts.do(t, http.MethodPost, "/get-upload-url", bytes.NewBufferString(`{"fileName":"cat.jpg"}`), "application/json")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, intake.MsgSignFailed, decodeError(t, rec))
}

type panicStrategy struct{}

func (panicStrategy) Name() string { return "panic" }

func (panicStrategy) Reject(_ context.Context, _ *intake.Request, err error) error { return err }

func (panicStrategy) Execute(context.Context, *intake.Request) (*upload.Result, error) {
	panic("nil map write")
}

func TestPanicBecomesJSON500(t *testing.T) {
	s := New(Options{Proxied: panicStrategy{}, Presigned: panicStrategy{}, Logger: logger.Discard()})

	req := httptest.NewRequest(http.MethodPost, "/get-upload-url", strings.NewReader(`{"fileName":"cat.jpg"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestUnknownRouteIsJSON(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decodeError(t, rec))

	rec = ts.do(t, http.MethodGet, "/upload-image", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", decodeError(t, rec))
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/upload-image", nil)
	req.Header.Set("Origin", "capacitor://localhost")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	require.Equal(t, http.StatusOK, ts.upload(t, jpegPart("cat.jpg", 10)).Code)

	rec := ts.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `imgup_intake_requests_total{outcome="completed",strategy="proxied"} 1`)
	assert.Contains(t, rec.Body.String(), `imgup_http_request_duration_seconds_count{code="200",route="/upload-image"} 1`)
}

func TestRejectionsAreCounted(t *testing.T) {
	ts := newTestServer(t)

	ts.upload(t, formPart{name: "file", fileName: "cat.png", contentType: "image/png", data: []byte("png")})
	ts.upload(t, formPart{name: "metadata", data: []byte(`{}`)})
	ts.upload(t, jpegPart("cat.jpg", 10), formPart{name: "metadata", data: []byte(`{"album":`)})
	ts.do(t, http.MethodPost, "/get-upload-url", bytes.NewBufferString(`{"fileName":`), "application/json")
	ts.do(t, http.MethodPost, "/get-upload-url", bytes.NewBufferString(`{}`), "application/json")

	rec := ts.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `imgup_intake_requests_total{outcome="rejected",strategy="proxied"} 3`)
	assert.Contains(t, rec.Body.String(), `imgup_intake_requests_total{outcome="rejected",strategy="presigned"} 2`)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
