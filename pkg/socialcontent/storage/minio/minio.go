package minio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tendant/social-content/pkg/socialcontent"
)

// Config options for the MinIO backend
type Config struct {
	Endpoint  string // host:port, without scheme
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
}

// Backend is a MinIO implementation of the socialcontent.BlobStore interface.
// The bucket is created on first write if it does not exist.
type Backend struct {
	client *minio.Client
	bucket string
	region string

	ensureOnce sync.Once
	ensureErr  error
}

// New creates a MinIO client and backend from config
func New(config Config) (*Backend, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return NewWithClient(client, config.Bucket, config.Region)
}

// NewWithClient creates a backend over an existing client
func NewWithClient(client *minio.Client, bucket, region string) (*Backend, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	return &Backend{client: client, bucket: bucket, region: region}, nil
}

var _ socialcontent.BlobStore = (*Backend)(nil)

// EnsureBucket creates the bucket if needed. The check runs once per backend.
func (b *Backend) EnsureBucket(ctx context.Context) error {
	b.ensureOnce.Do(func() {
		exists, err := b.client.BucketExists(ctx, b.bucket)
		if err != nil {
			b.ensureErr = err
			return
		}
		if exists {
			return
		}
		b.ensureErr = b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: b.region})
	})
	if b.ensureErr != nil {
		return fmt.Errorf("ensure minio bucket %q: %w", b.bucket, b.ensureErr)
	}
	return nil
}

// GetObjectMeta retrieves metadata for an object
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*socialcontent.ObjectMeta, error) {
	info, err := b.client.StatObject(ctx, b.bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, notFound(objectKey)
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}
	metadata := make(map[string]string, len(info.UserMetadata)+1)
	for k, v := range info.UserMetadata {
		metadata[k] = v
	}
	metadata["content_type"] = info.ContentType
	return &socialcontent.ObjectMeta{
		Key:         objectKey,
		Size:        info.Size,
		ContentType: info.ContentType,
		UpdatedAt:   info.LastModified,
		ETag:        info.ETag,
		Metadata:    metadata,
	}, nil
}

// UploadWithParams uploads content with additional parameters. A zero or
// negative Size streams the body with an unknown length.
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params socialcontent.UploadParams) error {
	if err := b.EnsureBucket(ctx); err != nil {
		return err
	}
	size := params.Size
	if size <= 0 {
		size = -1
	}
	_, err := b.client.PutObject(ctx, b.bucket, params.ObjectKey, reader, size, minio.PutObjectOptions{
		ContentType: params.MimeType,
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, notFound(objectKey)
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return obj, nil
}

// Delete deletes content. Removing a missing key succeeds.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", socialcontent.ErrBlobNotFound, key)
}
