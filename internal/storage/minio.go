// Package storage uploads exported mesh files to an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("minio-client")

// Client is the MinIO storage client
type Client struct {
	client   *minio.Client
	endpoint string
	bucket   string
	useSSL   bool

	bucketOnce sync.Once
	bucketErr  error
}

// NewClient creates a new MinIO client writing into bucket
func NewClient(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Client{
		client:   client,
		endpoint: endpoint,
		bucket:   bucket,
		useSSL:   useSSL,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist. The check runs once per client.
func (c *Client) EnsureBucket(ctx context.Context) error {
	c.bucketOnce.Do(func() {
		ctx, span := tracer.Start(ctx, "minio_ensure_bucket")
		defer span.End()
		span.SetAttributes(attribute.String("minio.bucket", c.bucket))

		exists, err := c.client.BucketExists(ctx, c.bucket)
		if err != nil {
			span.RecordError(err)
			c.bucketErr = fmt.Errorf("failed to check bucket existence: %w", err)
			return
		}
		if !exists {
			if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
				span.RecordError(err)
				c.bucketErr = fmt.Errorf("failed to create bucket: %w", err)
			}
		}
	})
	return c.bucketErr
}

// Upload stores data under key and returns the object URL
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ctx, span := tracer.Start(ctx, "minio_upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("minio.bucket", c.bucket),
		attribute.String("minio.key", key),
		attribute.Int("minio.size", len(data)),
	)

	if err := c.EnsureBucket(ctx); err != nil {
		return "", err
	}

	_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to upload to MinIO: %w", err)
	}

	return ObjectURL(c.endpoint, c.bucket, key, c.useSSL), nil
}

// ObjectURL builds the path-style URL of an object
func ObjectURL(endpoint, bucket, key string, useSSL bool) string {
	protocol := "http"
	if useSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, endpoint, bucket, key)
}
