package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"comfycollab/internal/pkg/logx"
)

// bucketStore keeps workflow outputs in a single S3-compatible bucket.
type bucketStore struct {
	bucket   *string
	api      *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	logger   zerolog.Logger
}

func newBucketStore(ctx context.Context, cfg ServiceConfig) (*bucketStore, error) {
	sdkCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "",
		)),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load sdk config: %w", err)
	}

	// MinIO and R2 only resolve path-style addressing.
	api := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = true
	})

	return &bucketStore{
		bucket:   aws.String(cfg.S3BucketName),
		api:      api,
		presign:  s3.NewPresignClient(api),
		uploader: manager.NewUploader(api),
		logger:   logx.Component("storage").With().Str("bucket", cfg.S3BucketName).Logger(),
	}, nil
}

// fail logs the SDK error against key and returns it wrapped with op.
func (b *bucketStore) fail(op, key string, err error) error {
	b.logger.Error().Err(err).Str("op", op).Str("key", key).Msg("Object storage request failed")
	return fmt.Errorf("storage: %s %s: %w", op, key, err)
}

func (b *bucketStore) PresignUpload(ctx context.Context, key, mimeType string, size int64, ttl time.Duration) (string, error) {
	req, err := b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        b.bucket,
		Key:           aws.String(key),
		ContentType:   aws.String(mimeType),
		ContentLength: aws.Int64(size),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", b.fail("presign put", key, err)
	}
	return req.URL, nil
}

func (b *bucketStore) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: b.bucket,
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", b.fail("presign get", key, err)
	}
	return req.URL, nil
}

// Upload streams body through the multipart manager, so the size need not be known.
func (b *bucketStore) Upload(ctx context.Context, key, mimeType string, body io.Reader) error {
	out, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      b.bucket,
		Key:         aws.String(key),
		ContentType: aws.String(mimeType),
		Body:        body,
	})
	if err != nil {
		return b.fail("upload", key, err)
	}
	b.logger.Debug().Str("key", key).Str("location", out.Location).Msg("Output stored")
	return nil
}

func (b *bucketStore) Delete(ctx context.Context, key string) error {
	if _, err := b.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: b.bucket, Key: aws.String(key)}); err != nil {
		return b.fail("delete", key, err)
	}
	return nil
}

// GetObjectMetadata returns Content-Type and Content-Length, or ErrNotFound.
func (b *bucketStore) GetObjectMetadata(ctx context.Context, key string) (map[string]string, error) {
	head, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: b.bucket, Key: aws.String(key)})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, ErrNotFound
		}
		return nil, b.fail("head", key, err)
	}

	meta := map[string]string{}
	if head.ContentType != nil {
		meta["Content-Type"] = *head.ContentType
	}
	if head.ContentLength != nil {
		meta["Content-Length"] = strconv.FormatInt(*head.ContentLength, 10)
	}
	return meta, nil
}
