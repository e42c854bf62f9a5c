package repository

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/asafaviv-devops/image-gallery/internal/domain"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryRepository keeps objects in process memory. It backs the "memory"
// driver for local runs and the service tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject
	now     func() time.Time
}

func NewMemoryRepository(bucket string) *MemoryRepository {
	if bucket == "" {
		bucket = "gallery"
	}
	return &MemoryRepository{
		bucket:  bucket,
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

func (r *MemoryRepository) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError(OpPutObject, key, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError(OpGetObject, key, err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[key]
	if !ok {
		return nil, fmt.Errorf("get object %q: %w", key, domain.ErrNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

// ContentType reports the content type an object was stored with.
func (r *MemoryRepository) ContentType(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[key]
	return obj.contentType, ok
}

func (r *MemoryRepository) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError(OpListObjects, prefix, err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []string
	for key := range r.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *MemoryRepository) DeleteMany(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError(OpDeleteObjects, "", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		delete(r.objects, key)
	}
	return nil
}

func (r *MemoryRepository) Presign(_ context.Context, key string, ttl time.Duration) (string, error) {
	u := url.URL{
		Scheme:   "memory",
		Host:     r.bucket,
		Path:     "/" + key,
		RawQuery: url.Values{"expires": {fmt.Sprint(r.now().Add(ttl).Unix())}}.Encode(),
	}
	return u.String(), nil
}

func (r *MemoryRepository) HeadBucket(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError(OpHeadBucket, "", err)
	}
	return nil
}
