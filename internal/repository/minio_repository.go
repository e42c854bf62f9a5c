package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/asafaviv-devops/image-gallery/internal/config"
	"github.com/asafaviv-devops/image-gallery/internal/domain"
)

// minioRepository talks to MinIO or any S3-compatible endpoint through minio-go.
type minioRepository struct {
	client   *minio.Client
	bucket   string
	observer OperationObserver
	log      *zap.Logger
}

func NewMinioRepository(_ context.Context, cfg *config.S3Config, observer OperationObserver, log *zap.Logger) (ObjectStore, error) {
	creds := credentials.NewIAM("")
	if cfg.StaticCredentials() {
		creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	log.Info("MinIO repository initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.BucketName))

	return newMinioRepository(client, cfg.BucketName, observer, log), nil
}

func newMinioRepository(client *minio.Client, bucket string, observer OperationObserver, log *zap.Logger) *minioRepository {
	if observer == nil {
		observer = nopObserver{}
	}
	return &minioRepository{
		client:   client,
		bucket:   bucket,
		observer: observer,
		log:      log,
	}
}

func (r *minioRepository) Put(ctx context.Context, key string, data []byte, contentType string) error {
	defer track(r.observer, OpPutObject)()

	_, err := r.client.PutObject(ctx, r.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		r.log.Error("Failed to upload object to MinIO", zap.String("key", key), zap.Error(err))
		return unavailable(r.observer, OpPutObject, key, err)
	}
	return nil
}

func (r *minioRepository) Get(ctx context.Context, key string) ([]byte, error) {
	defer track(r.observer, OpGetObject)()

	obj, err := r.client.GetObject(ctx, r.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, r.classify(OpGetObject, key, err)
	}
	defer obj.Close()

	// minio-go defers the request until the first read
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, r.classify(OpGetObject, key, err)
	}
	return data, nil
}

func (r *minioRepository) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	defer track(r.observer, OpListObjects)()

	var keys []string
	for obj := range r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			r.log.Error("Failed to list objects in MinIO", zap.String("prefix", prefix), zap.Error(obj.Err))
			return nil, unavailable(r.observer, OpListObjects, prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (r *minioRepository) DeleteMany(ctx context.Context, keys []string) error {
	defer track(r.observer, OpDeleteObjects)()

	objects := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objects <- minio.ObjectInfo{Key: key}
	}
	close(objects)

	// the result channel must be drained, or minio-go's forwarding goroutine blocks forever
	var batchErr error
	for e := range r.client.RemoveObjects(ctx, r.bucket, objects, minio.RemoveObjectsOptions{}) {
		if e.Err == nil {
			continue
		}
		if isKeyRefusal(e) {
			r.log.Warn("MinIO refused to delete object", zap.String("key", e.ObjectName), zap.Error(e.Err))
			continue
		}
		if batchErr == nil {
			batchErr = e.Err
		}
	}
	if batchErr != nil {
		r.log.Error("Failed to delete objects in MinIO", zap.Strings("keys", keys), zap.Error(batchErr))
		return unavailable(r.observer, OpDeleteObjects, "", batchErr)
	}
	return nil
}

// isKeyRefusal reports a per-key <Error> entry of a multi-delete response that
// otherwise succeeded. Those carry an S3 code but no HTTP status; transport
// failures carry neither, and rejected requests carry a status.
func isKeyRefusal(e minio.RemoveObjectError) bool {
	resp := minio.ToErrorResponse(e.Err)
	return e.ObjectName != "" && resp.Code != "" && resp.StatusCode == 0
}

func (r *minioRepository) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	defer track(r.observer, OpPresign)()

	u, err := r.client.PresignedGetObject(ctx, r.bucket, key, ttl, nil)
	if err != nil {
		return "", domain.NewStorageError(OpPresign, key, err)
	}
	return u.String(), nil
}

func (r *minioRepository) HeadBucket(ctx context.Context) error {
	defer track(r.observer, OpHeadBucket)()

	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err == nil && !exists {
		err = fmt.Errorf("bucket %q does not exist", r.bucket)
	}
	if err != nil {
		r.log.Error("MinIO connection failed", zap.String("bucket", r.bucket), zap.Error(err))
		return unavailable(r.observer, OpHeadBucket, "", err)
	}
	return nil
}

func (r *minioRepository) classify(op, key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("get object %q: %w", key, domain.ErrNotFound)
	}
	r.log.Error("Failed to download object from MinIO", zap.String("key", key), zap.Error(err))
	return unavailable(r.observer, op, key, err)
}
