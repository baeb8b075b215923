package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap/zaptest"

	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry/telemetrytest"
)

func TestNewS3ObjectStorage_Validation(t *testing.T) {
	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3ObjectStorage(Config{AccessKey: "test-key", SecretKey: "test-secret"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("missing access key returns error", func(t *testing.T) {
		_, err := NewS3ObjectStorage(Config{Bucket: "test-bucket", SecretKey: "test-secret"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access key is required")
	})

	t.Run("missing secret key returns error", func(t *testing.T) {
		_, err := NewS3ObjectStorage(Config{Bucket: "test-bucket", AccessKey: "test-key"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret key is required")
	})

	t.Run("defaults", func(t *testing.T) {
		storage, err := NewS3ObjectStorage(Config{Bucket: "test-bucket", AccessKey: "test-key", SecretKey: "test-secret"},
			WithLogger(zaptest.NewLogger(t)))
		require.NoError(t, err)
		assert.Equal(t, "test-bucket", storage.GetBucket())
		assert.Equal(t, "us-east-1", storage.region)
		assert.Equal(t, 15*time.Minute, storage.presignExpiration)
	})
}

// fakeS3 serves the path-style requests the storage issues.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]string
	modified time.Time
	requests []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	path := strings.TrimSuffix(r.URL.Path, "/")
	key := strings.TrimPrefix(path, "/feeds/")
	switch {
	case r.Method == http.MethodHead && path == "/feeds":
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead && path == "/missing-bucket":
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodHead:
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Last-Modified", f.modified.Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = string(body)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeStorage(t *testing.T, bucket string, rec *telemetrytest.Recorder) (*S3ObjectStorage, *fakeS3) {
	t.Helper()
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	fake := &fakeS3{objects: map[string]string{}, modified: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	recorder, err := NewRecorder(rec.Meter)
	require.NoError(t, err)
	storage, err := NewS3ObjectStorage(Config{
		Bucket:       bucket,
		AccessKey:    "test-key",
		SecretKey:    "test-secret",
		Region:       "eu-central-1",
		Endpoint:     srv.URL,
		UsePathStyle: true,
		Tenant:       "https://shop.saleor.cloud/graphql/",
		Recorder:     recorder,
	})
	require.NoError(t, err)
	return storage, fake
}

func TestS3ObjectStorage_CheckBucket(t *testing.T) {
	rec := telemetrytest.New(t)

	storage, _ := newFakeStorage(t, "feeds", rec)
	require.NoError(t, storage.CheckBucket(context.Background()))

	missing, _ := newFakeStorage(t, "missing-bucket", rec)
	err := missing.CheckBucket(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing-bucket")

	assert.Equal(t, int64(1), rec.CounterValue(t, "saleor.app.products_feed.s3.requests",
		attribute.String("status", "success"),
		attribute.String("method", "head_bucket"),
		attribute.String("aws.region", "eu-central-1"),
		attribute.String("saleor.tenant_domain", "shop.saleor.cloud"),
	))
	assert.Equal(t, int64(1), rec.CounterValue(t, "saleor.app.products_feed.s3.requests",
		attribute.String("status", "error"),
		attribute.String("method", "head_bucket"),
	))
}

func TestS3ObjectStorage_UploadAndLastModified(t *testing.T) {
	rec := telemetrytest.New(t)
	storage, fake := newFakeStorage(t, "feeds", rec)
	ctx := context.Background()
	key := "shop.saleor.cloud/default-channel/google.xml"

	_, found, err := storage.LastModified(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, storage.Upload(ctx, key, []byte("<rss/>"), "application/xml"))
	assert.Contains(t, fake.objects[key], "<rss/>")

	modified, found, err := storage.LastModified(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, modified.Equal(fake.modified))

	require.NoError(t, storage.DeleteObject(ctx, key))
	assert.Empty(t, fake.objects)

	assert.Contains(t, rec.SpanNames(), "calling S3 putObject API")
}

func TestS3ObjectStorage_GenerateDownloadURL(t *testing.T) {
	storage, err := NewS3ObjectStorage(Config{
		Bucket:            "test-bucket",
		AccessKey:         "test-key",
		SecretKey:         "test-secret",
		Endpoint:          "localhost:9000",
		UsePathStyle:      true,
		PresignExpiration: 10 * time.Minute,
	}, WithClock(clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))))
	require.NoError(t, err)

	t.Run("empty storage key returns error", func(t *testing.T) {
		url, _, err := storage.GenerateDownloadURL(context.Background(), "", time.Minute)
		require.ErrorIs(t, err, ErrMissingKey)
		assert.Empty(t, url)
	})

	t.Run("generates presigned URL", func(t *testing.T) {
		url, expiresAt, err := storage.GenerateDownloadURL(context.Background(), "shop/default-channel/google.xml", time.Hour)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(url, "https://localhost:9000/test-bucket/shop/default-channel/google.xml"))
		assert.Contains(t, url, "X-Amz-Signature=")
		assert.Equal(t, time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC), expiresAt)
	})

	t.Run("uses default expiration when not provided", func(t *testing.T) {
		url, expiresAt, err := storage.GenerateDownloadURL(context.Background(), "key.xml", 0)
		require.NoError(t, err)
		assert.Contains(t, url, "X-Amz-Expires=600")
		assert.Equal(t, time.Date(2026, 5, 1, 12, 10, 0, 0, time.UTC), expiresAt)
	})
}

func TestS3ObjectStorage_EmptyKeys(t *testing.T) {
	storage, err := NewS3ObjectStorage(Config{Bucket: "b", AccessKey: "k", SecretKey: "s", Endpoint: "http://localhost:9000"})
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, storage.Upload(ctx, "", nil, "text/plain"), ErrMissingKey)
	assert.ErrorIs(t, storage.DeleteObject(ctx, ""), ErrMissingKey)
	_, _, err = storage.LastModified(ctx, "")
	assert.ErrorIs(t, err, ErrMissingKey)
}
