package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", "http://localhost:8080/")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPreviewKey(t *testing.T) {
	assert.Equal(t, "previews/abc/desktop.html", PreviewKey("abc", "desktop"))
}

func TestSQLiteStorePutGet(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	key := PreviewKey("p1", "desktop")

	url, err := s.Put(ctx, key, []byte("<html>first</html>"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/previews/p1/desktop.html", url)

	_, err = s.Put(ctx, key, []byte("<html>second</html>"))
	require.NoError(t, err)

	obj, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "<html>second</html>", string(obj.Content))
	assert.Equal(t, ContentType, obj.ContentType)

	_, err = s.Get(ctx, PreviewKey("p1", "mobile"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLiteStoreKeys(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	for _, key := range []string{PreviewKey("p1", "tablet"), PreviewKey("p1", "desktop"), PreviewKey("p10", "desktop")} {
		_, err := s.Put(ctx, key, []byte("doc"))
		require.NoError(t, err)
	}

	keys, err := s.Keys(ctx, "previews/p1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"previews/p1/desktop.html", "previews/p1/tablet.html"}, keys)

	keys, err = s.Keys(ctx, "previews/none/")
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.NoError(t, s.Ping(ctx))
}

func TestSQLiteStorePurge(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	_, err := s.Put(ctx, "previews/old/desktop.html", []byte("old"))
	require.NoError(t, err)
	s.now = func() time.Time { return base.Add(48 * time.Hour) }
	_, err = s.Put(ctx, "previews/new/desktop.html", []byte("new"))
	require.NoError(t, err)

	n, err := s.PurgeBefore(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.Get(ctx, "previews/old/desktop.html")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "previews/new/desktop.html")
	assert.NoError(t, err)
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	headers map[string]http.Header
	deny    bool
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	if b.deny {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+
			`<Error><Code>AccessDenied</Code><Message>Access Denied</Message>`+
			`<Key>k</Key><BucketName>previews</BucketName><RequestId>1</RequestId></Error>`)
		return
	}
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.objects[r.URL.Path] = body
	b.headers[r.URL.Path] = r.Header.Clone()
	b.mu.Unlock()
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func newFakeS3(t *testing.T, bucket *fakeBucket) *S3Store {
	t.Helper()
	ts := httptest.NewServer(bucket)
	t.Cleanup(ts.Close)

	s, err := NewS3Store(S3Config{
		Endpoint:        ts.URL,
		Region:          "auto",
		AccessKeyID:     "test",
		SecretAccessKey: "secret",
		Bucket:          "previews",
		PathStyle:       true,
	})
	require.NoError(t, err)
	return s
}

func TestS3StorePut(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{}, headers: map[string]http.Header{}}
	s := newFakeS3(t, bucket)

	url, err := s.Put(context.Background(), "previews/p1/mobile.html", []byte("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, "https://previews.fly.storage.tigris.dev/previews/p1/mobile.html", url)

	assert.Equal(t, "<html></html>", string(bucket.objects["/previews/previews/p1/mobile.html"]))
	h := bucket.headers["/previews/previews/p1/mobile.html"]
	assert.Equal(t, ContentType, h.Get("Content-Type"))
	assert.Equal(t, CacheControl, h.Get("Cache-Control"))
}

func TestS3StoreReportsBackendCode(t *testing.T) {
	s := newFakeS3(t, &fakeBucket{deny: true})

	_, err := s.Put(context.Background(), "previews/p1/desktop.html", []byte("x"))
	var uerr *UploadError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "AccessDenied", uerr.Code)
	assert.Equal(t, "previews/p1/desktop.html", uerr.Key)
}

func TestNewS3StoreRejectsBadEndpoint(t *testing.T) {
	_, err := NewS3Store(S3Config{Endpoint: "not a url", Bucket: "b"})
	assert.Error(t, err)
}
