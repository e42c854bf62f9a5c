// Package repository adapts object storage backends to the operations the
// gallery needs. Each method is one blocking round trip to the backend.
package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/asafaviv-devops/image-gallery/internal/config"
	"github.com/asafaviv-devops/image-gallery/internal/domain"
)

// S3 operation labels reported to the OperationObserver.
const (
	OpPutObject     = "put_object"
	OpGetObject     = "get_object"
	OpListObjects   = "list_objects"
	OpDeleteObjects = "delete_objects"
	OpPresign       = "presign"
	OpHeadBucket    = "head_bucket"
)

// deleteBatchSize is the S3 limit for a single DeleteObjects request.
const deleteBatchSize = 1000

type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get fails with domain.ErrNotFound when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
	// DeleteMany succeeds even when some keys were already absent.
	DeleteMany(ctx context.Context, keys []string) error
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	// HeadBucket returns nil when the bucket is reachable.
	HeadBucket(ctx context.Context) error
}

type OperationObserver interface {
	ObserveS3Operation(operation string, d time.Duration)
	IncS3ConnectionError()
}

type nopObserver struct{}

func (nopObserver) ObserveS3Operation(string, time.Duration) {}
func (nopObserver) IncS3ConnectionError()                    {}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg *config.S3Config, observer OperationObserver, log *zap.Logger) (ObjectStore, error) {
	if observer == nil {
		observer = nopObserver{}
	}
	switch cfg.Driver {
	case config.DriverS3, "":
		return NewS3Repository(ctx, cfg, observer, log)
	case config.DriverMinio:
		return NewMinioRepository(ctx, cfg, observer, log)
	case config.DriverMemory:
		return NewMemoryRepository(cfg.BucketName), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// track starts a timer for op; call the returned func in a defer.
func track(observer OperationObserver, op string) func() {
	start := time.Now()
	return func() {
		observer.ObserveS3Operation(op, time.Since(start))
	}
}

// unavailable counts a transport failure and wraps it as a storage error.
func unavailable(observer OperationObserver, op, key string, err error) error {
	observer.IncS3ConnectionError()
	return domain.NewStorageError(op, key, err)
}

func chunk(keys []string, size int) [][]string {
	var batches [][]string
	for len(keys) > size {
		batches = append(batches, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		batches = append(batches, keys)
	}
	return batches
}
