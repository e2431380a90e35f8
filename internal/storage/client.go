// Package storage archives original uploads in an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const archivedByMetadata = "archived-by"

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Object is one archived upload.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

type Client struct {
	minio  *minio.Client
	bucket string
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("archive bucket is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Client{minio: mc, bucket: cfg.Bucket}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

// EnsureBucket creates the archive bucket on first start. Losing the race to
// another process is fine.
func (c *Client) EnsureBucket(ctx context.Context) error {
	makeErr := c.minio.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	if makeErr == nil {
		return nil
	}

	exists, err := c.minio.BucketExists(ctx, c.bucket)
	if err == nil && exists {
		return nil
	}
	return fmt.Errorf("make bucket %s: %w", c.bucket, makeErr)
}

func (c *Client) WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	_, err := c.minio.PutObject(ctx, c.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:    contentType,
		UserMetadata:   map[string]string{archivedByMetadata: "pixelnote"},
		SendContentMd5: true,
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", objectKey, err)
	}
	return nil
}

// List returns every object under prefix in key order.
func (c *Client) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	for info := range c.minio.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", c.bucket, prefix, info.Err)
		}
		objects = append(objects, Object{
			Key:          info.Key,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	return objects, nil
}
