package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/cloudbox/internal/boxstore"
	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/listing"
	"github.com/koustreak/cloudbox/internal/logger"
	"github.com/koustreak/cloudbox/internal/transport"
)

// memStore is a filestore.Store over a map of objects.
type memStore struct {
	objects map[string][]byte
	buckets []filestore.BucketInfo
	lastReq filestore.ListRequest
	lastTTL time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		objects: map[string][]byte{"reports/q1.csv": []byte("a,b\n")},
		buckets: []filestore.BucketInfo{{Name: "reports"}},
	}
}

func (m *memStore) Provider() credential.Provider { return credential.ProviderS3 }

func (m *memStore) TestConnection(context.Context) *filestore.ConnectionResult {
	return &filestore.ConnectionResult{Success: true, Provider: "s3", Message: "ok"}
}

func (m *memStore) ListContents(_ context.Context, req filestore.ListRequest) (*listing.View, error) {
	m.lastReq = req
	page := &listing.Page{}
	for k, v := range m.objects {
		page.Objects = append(page.Objects, listing.Object{Key: k, Size: int64(len(v))})
	}
	return listing.Normalize(page, req.Prefix), nil
}

func (m *memStore) UploadFile(_ context.Context, data []byte, remotePath string) (*filestore.UploadResult, error) {
	key, err := filestore.RequireKey("s3", "UploadFile", remotePath)
	if err != nil {
		return nil, err
	}
	m.objects[key] = data
	return &filestore.UploadResult{Path: key, Size: int64(len(data)), ContentType: filestore.ContentType(key)}, nil
}

func (m *memStore) DownloadFile(_ context.Context, remotePath string) ([]byte, error) {
	data, ok := m.objects[remotePath]
	if !ok {
		return nil, &errs.ProviderError{Kind: errs.KindNotFound, Provider: "s3", Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return data, nil
}

func (m *memStore) GetSignedURL(_ context.Context, remotePath string, ttl time.Duration) (string, error) {
	m.lastTTL = ttl
	return "https://reports.s3.amazonaws.com/" + remotePath + "?X-Amz-Signature=abc", nil
}

func (m *memStore) ListBuckets(context.Context) ([]filestore.BucketInfo, error) {
	return m.buckets, nil
}

func (m *memStore) CreateBucket(_ context.Context, name string) error {
	for _, b := range m.buckets {
		if b.Name == name {
			return &errs.ProviderError{Kind: errs.KindConflict, Provider: "s3", Code: "BucketAlreadyOwnedByYou"}
		}
	}
	m.buckets = append(m.buckets, filestore.BucketInfo{Name: name})
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	mem := newMemStore()
	boxes := boxstore.NewMemory(boxstore.Box{Name: "reports", Provider: "s3"})
	srv := New(Options{
		Boxes: boxes,
		Log:   logger.Nop(),
		Open: func(ctx context.Context, name string) (filestore.Store, error) {
			if _, err := boxes.Get(ctx, name); err != nil {
				return nil, err
			}
			return mem, nil
		},
		MaxUploadBytes: 16,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, mem
}

func do(t *testing.T, method, url string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, body = do(t, http.MethodGet, ts.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestListBoxes(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/boxes", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"name":"reports","provider":"s3"}]`, string(body))
}

func TestContents(t *testing.T) {
	ts, mem := newTestServer(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/boxes/reports/contents?prefix=reports/&limit=50&token=t1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view listing.View
	require.NoError(t, json.Unmarshal(body, &view))
	require.Len(t, view.Files, 1)
	assert.Equal(t, "q1.csv", view.Files[0].Name)
	assert.Equal(t, filestore.ListRequest{Prefix: "reports/", PageLimit: 50, Token: "t1"}, mem.lastReq)

	resp, _ = do(t, http.MethodGet, ts.URL+"/boxes/reports/contents?limit=lots", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadAndDownload(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := do(t, http.MethodPut, ts.URL+"/boxes/reports/files/notes/meta.json", strings.NewReader(`{"a":1}`))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"path":"notes/meta.json","size":7,"contentType":"application/json"}`, string(body))

	resp, body = do(t, http.MethodGet, ts.URL+"/boxes/reports/files/notes/meta.json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"a":1}`, string(body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	resp, body = do(t, http.MethodGet, ts.URL+"/boxes/reports/files/absent.txt", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), `"code":"NoSuchKey"`)

	resp, _ = do(t, http.MethodPut, ts.URL+"/boxes/reports/files/big.bin", bytes.NewReader(make([]byte, 64)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, ts.URL+"/boxes/reports/files/folder/", strings.NewReader("x"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSignedURL(t *testing.T) {
	ts, mem := newTestServer(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/boxes/reports/signed-url?path=reports/q1.csv&ttl=600", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "X-Amz-Signature")
	assert.Equal(t, 10*time.Minute, mem.lastTTL)

	resp, _ = do(t, http.MethodGet, ts.URL+"/boxes/reports/signed-url?path=a&ttl=2h", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2*time.Hour, mem.lastTTL)

	resp, _ = do(t, http.MethodGet, ts.URL+"/boxes/reports/signed-url?path=a&ttl=-5", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBuckets(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/boxes/reports/buckets", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"name":"reports"`)

	resp, _ = do(t, http.MethodPost, ts.URL+"/boxes/reports/buckets", strings.NewReader(`{"name":"archive"}`))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = do(t, http.MethodPost, ts.URL+"/boxes/reports/buckets", strings.NewReader(`{"name":"archive"}`))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), `"kind":"conflict"`)

	resp, _ = do(t, http.MethodPost, ts.URL+"/boxes/reports/buckets", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownBox(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/boxes/nope/test", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), `"provider":"boxstore"`)

	resp, body = do(t, http.MethodGet, ts.URL+"/boxes/reports/test", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"success":true`)
}

func TestDefaultOpener(t *testing.T) {
	exec := transport.ExecutorFunc(func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		return &transport.Response{Status: http.StatusOK, Body: []byte(`<ListAllMyBucketsResult><Buckets><Bucket><Name>reports</Name></Bucket></Buckets></ListAllMyBucketsResult>`)}, nil
	})
	boxes := boxstore.NewMemory(
		boxstore.Box{
			Name:        "reports",
			Provider:    "s3",
			Credentials: map[string]any{"accessKeyId": "AKID", "secretAccessKey": "secret"},
		},
		boxstore.Box{Name: "half", Provider: "azure", Credentials: map[string]any{"accountName": "acct"}},
	)
	srv := New(Options{Boxes: boxes, Env: filestore.Env{Exec: exec}, Log: logger.Nop()})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, body := do(t, http.MethodGet, ts.URL+"/boxes/reports/buckets", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"name":"reports"`)

	resp, body = do(t, http.MethodGet, ts.URL+"/boxes/half/buckets", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"kind":"resolution"`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&errs.ProviderError{Kind: errs.KindNotFound}, http.StatusNotFound},
		{&errs.ProviderError{Kind: errs.KindPermission}, http.StatusForbidden},
		{&errs.ProviderError{Kind: errs.KindAuthentication}, http.StatusUnauthorized},
		{errs.Missing("s3", "secretKey"), http.StatusBadRequest},
		{&errs.ProviderError{Kind: errs.KindMalformedRequest}, http.StatusBadRequest},
		{errs.Unsupported("sftp", "GetSignedURL"), http.StatusNotImplemented},
		{errs.Transport("ListContents", "https://x", errors.New("reset")), http.StatusBadGateway},
		{&errs.ProviderError{Kind: errs.KindConflict}, http.StatusConflict},
		{&errs.ProviderError{Kind: errs.KindThrottled}, http.StatusTooManyRequests},
		{&errs.ProviderError{Kind: errs.KindRedirect}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}
