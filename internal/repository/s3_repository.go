package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/asafaviv-devops/image-gallery/internal/config"
	"github.com/asafaviv-devops/image-gallery/internal/domain"
)

// S3API is the subset of *s3.Client used by the repository.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type s3Repository struct {
	client    S3API
	presigner *s3.PresignClient
	bucket    string
	observer  OperationObserver
	log       *zap.Logger
}

func NewS3Repository(ctx context.Context, cfg *config.S3Config, observer OperationObserver, log *zap.Logger) (ObjectStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.StaticCredentials() {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	log.Info("S3 repository initialized",
		zap.String("bucket", cfg.BucketName),
		zap.String("region", cfg.Region),
		zap.Bool("static_credentials", cfg.StaticCredentials()))

	return newS3Repository(client, s3.NewPresignClient(client), cfg.BucketName, observer, log), nil
}

func newS3Repository(client S3API, presigner *s3.PresignClient, bucket string, observer OperationObserver, log *zap.Logger) *s3Repository {
	if observer == nil {
		observer = nopObserver{}
	}
	return &s3Repository{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		observer:  observer,
		log:       log,
	}
}

func (r *s3Repository) Put(ctx context.Context, key string, data []byte, contentType string) error {
	defer track(r.observer, OpPutObject)()

	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		r.log.Error("Failed to upload object to S3",
			zap.String("key", key),
			zap.Error(err))
		return unavailable(r.observer, OpPutObject, key, err)
	}

	r.log.Debug("Object uploaded to S3",
		zap.String("key", key),
		zap.Int("size", len(data)))

	return nil
}

func (r *s3Repository) Get(ctx context.Context, key string) ([]byte, error) {
	defer track(r.observer, OpGetObject)()

	output, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get object %q: %w", key, domain.ErrNotFound)
		}
		r.log.Error("Failed to download object from S3",
			zap.String("key", key),
			zap.Error(err))
		return nil, unavailable(r.observer, OpGetObject, key, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, unavailable(r.observer, OpGetObject, key, err)
	}
	return data, nil
}

func (r *s3Repository) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	defer track(r.observer, OpListObjects)()

	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			r.log.Error("Failed to list objects in S3",
				zap.String("prefix", prefix),
				zap.Error(err))
			return nil, unavailable(r.observer, OpListObjects, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}

func (r *s3Repository) DeleteMany(ctx context.Context, keys []string) error {
	defer track(r.observer, OpDeleteObjects)()

	for _, batch := range chunk(keys, deleteBatchSize) {
		objects := make([]types.ObjectIdentifier, 0, len(batch))
		for _, key := range batch {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		output, err := r.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(r.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			r.log.Error("Failed to delete objects in S3",
				zap.Strings("keys", batch),
				zap.Error(err))
			return unavailable(r.observer, OpDeleteObjects, "", err)
		}

		// the batch call succeeded; per-key failures are reported but not returned
		for _, e := range output.Errors {
			r.log.Warn("S3 refused to delete object",
				zap.String("key", aws.ToString(e.Key)),
				zap.String("code", aws.ToString(e.Code)),
				zap.String("message", aws.ToString(e.Message)))
		}
	}

	r.log.Debug("Objects deleted from S3", zap.Strings("keys", keys))

	return nil
}

func (r *s3Repository) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	defer track(r.observer, OpPresign)()

	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", domain.NewStorageError(OpPresign, key, err)
	}
	return req.URL, nil
}

func (r *s3Repository) HeadBucket(ctx context.Context) error {
	defer track(r.observer, OpHeadBucket)()

	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.bucket),
	})
	if err != nil {
		r.log.Error("S3 connection failed",
			zap.String("bucket", r.bucket),
			zap.Error(err))
		return unavailable(r.observer, OpHeadBucket, "", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
