/*
Package storage presigns uploads and downloads of workflow outputs on an
S3-compatible object store.
*/
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when the object does not exist.
var ErrNotFound = errors.New("file not found")

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// StorageService is the object store as seen by the output endpoints.
type StorageService interface {
	// PresignUpload generates a pre-signed URL for uploading a file.
	PresignUpload(
		ctx context.Context,
		key string,
		mimeType string,
		fileSize int64,
		duration time.Duration,
	) (string, error)

	// PresignDownload generates a pre-signed URL for downloading a file.
	PresignDownload(ctx context.Context, key string, duration time.Duration) (string, error)

	// Upload stores body under key. It is used when the client cannot reach
	// the object store directly.
	Upload(ctx context.Context, key string, mimeType string, body io.Reader) error

	// Delete removes the file specified by the given key.
	Delete(ctx context.Context, key string) error

	// GetObjectMetadata retrieves the object's content type and length.
	GetObjectMetadata(ctx context.Context, key string) (map[string]string, error)
}

// NewStorageService returns the S3-compatible implementation.
func NewStorageService(ctx context.Context, cfg ServiceConfig) (StorageService, error) {
	return newBucketStore(ctx, cfg)
}
