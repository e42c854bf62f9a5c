package repository

import (
	"context"
	"encoding/xml"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/asafaviv-devops/image-gallery/internal/domain"
)

const testBucket = "gallery"

// fakeMinio answers the handful of S3 calls the minio driver makes.
type fakeMinio struct {
	mu            sync.Mutex
	objects       map[string][]byte
	bucketMissing bool
	deleteStatus  int
	refuse        map[string]bool
}

type deleteRequest struct {
	Objects []struct {
		Key string `xml:"Key"`
	} `xml:"Object"`
}

func (f *fakeMinio) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/"+testBucket), "/")

	switch {
	case r.Method == http.MethodHead && key == "":
		if f.bucketMissing {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodGet && key == "":
		f.list(w, r.URL.Query().Get("prefix"))

	case r.Method == http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		_, _ = w.Write(data)

	case r.Method == http.MethodPost && r.URL.Query().Has("delete"):
		if f.deleteStatus != 0 {
			w.WriteHeader(f.deleteStatus)
			return
		}
		f.delete(w, r)

	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeMinio) list(w http.ResponseWriter, prefix string) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	b.WriteString("<Name>" + testBucket + "</Name><Prefix>" + prefix + "</Prefix>")
	b.WriteString("<MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>")
	for key, data := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		fmt.Fprintf(&b, `<Contents><Key>%s</Key><LastModified>2024-01-01T00:00:00.000Z</LastModified><ETag>"x"</ETag><Size>%d</Size><StorageClass>STANDARD</StorageClass></Contents>`,
			key, len(data))
	}
	b.WriteString("</ListBucketResult>")
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(b.String()))
}

func (f *fakeMinio) delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><DeleteResult>`)
	for _, obj := range req.Objects {
		if f.refuse[obj.Key] {
			fmt.Fprintf(&b, "<Error><Key>%s</Key><Code>AccessDenied</Code><Message>Access Denied</Message></Error>", obj.Key)
			continue
		}
		delete(f.objects, obj.Key)
		fmt.Fprintf(&b, "<Deleted><Key>%s</Key></Deleted>", obj.Key)
	}
	b.WriteString("</DeleteResult>")
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(b.String()))
}

func newMinioTestRepository(t *testing.T, endpoint string) (*minioRepository, *recordingObserver) {
	t.Helper()
	client, err := minio.New(endpoint, &minio.Options{
		Creds:      credentials.NewStaticV4("minio", "minio123", ""),
		Region:     "us-east-1",
		MaxRetries: 1,
	})
	require.NoError(t, err)

	observer := &recordingObserver{}
	return newMinioRepository(client, testBucket, observer, zap.NewNop()), observer
}

func startFakeMinio(t *testing.T, fake *fakeMinio) string {
	t.Helper()
	if fake.objects == nil {
		fake.objects = map[string][]byte{}
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestMinioGet(t *testing.T) {
	fake := &fakeMinio{objects: map[string][]byte{"images/a.png": []byte("png-bytes")}}
	repo, observer := newMinioTestRepository(t, startFakeMinio(t, fake))
	ctx := context.Background()

	data, err := repo.Get(ctx, "images/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	_, err = repo.Get(ctx, "images/missing.png")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Zero(t, observer.connErrors)
}

func TestMinioListByPrefix(t *testing.T) {
	fake := &fakeMinio{objects: map[string][]byte{
		"metadata/a.json": []byte("{}"),
		"metadata/b.json": []byte("{}"),
		"images/a":        []byte("x"),
	}}
	repo, _ := newMinioTestRepository(t, startFakeMinio(t, fake))

	keys, err := repo.ListByPrefix(context.Background(), domain.MetadataPrefix)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"metadata/a.json", "metadata/b.json"}, keys)
}

func TestMinioDeleteMany(t *testing.T) {
	t.Run("per-key refusal is not a failure", func(t *testing.T) {
		fake := &fakeMinio{
			objects: map[string][]byte{"a": {1}, "b": {2}, "c": {3}},
			refuse:  map[string]bool{"b": true},
		}
		repo, observer := newMinioTestRepository(t, startFakeMinio(t, fake))

		require.NoError(t, repo.DeleteMany(context.Background(), []string{"a", "b", "c"}))

		fake.mu.Lock()
		defer fake.mu.Unlock()
		assert.Equal(t, map[string][]byte{"b": {2}}, fake.objects)
		assert.Zero(t, observer.connErrors)
	})

	t.Run("rejected batch", func(t *testing.T) {
		fake := &fakeMinio{deleteStatus: http.StatusForbidden}
		repo, observer := newMinioTestRepository(t, startFakeMinio(t, fake))

		err := repo.DeleteMany(context.Background(), []string{"a", "b"})
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
		assert.Equal(t, 1, observer.connErrors)
	})
}

func TestMinioDeleteManyTransportFailureReleasesGoroutines(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	repo, observer := newMinioTestRepository(t, addr)
	before := runtime.NumGoroutine()

	const calls = 10
	for i := 0; i < calls; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		err := repo.DeleteMany(ctx, []string{"a", "b", "c"})
		cancel()
		require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, calls, observer.connErrors)
}

func TestMinioHeadBucket(t *testing.T) {
	fake := &fakeMinio{}
	repo, observer := newMinioTestRepository(t, startFakeMinio(t, fake))
	ctx := context.Background()

	require.NoError(t, repo.HeadBucket(ctx))

	fake.mu.Lock()
	fake.bucketMissing = true
	fake.mu.Unlock()

	assert.ErrorIs(t, repo.HeadBucket(ctx), domain.ErrStorageUnavailable)
	assert.Equal(t, 1, observer.connErrors)
	assert.Equal(t, []string{OpHeadBucket, OpHeadBucket}, observer.operations)
}

func TestMinioPresign(t *testing.T) {
	repo, _ := newMinioTestRepository(t, startFakeMinio(t, &fakeMinio{}))

	url, err := repo.Presign(context.Background(), "images/a.png", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, "/"+testBucket+"/images/a.png")
	assert.Contains(t, url, "X-Amz-Expires=3600")
}
