package minio

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client implements ports.SourceProvider for S3-compatible object storage.
// Keys have the form "{bucket}/{object}".
type Client struct {
	mc *minio.Client
}

// Dial builds a MinIO client for endpoint.
func Dial(endpoint, accessKey, secretKey string, useSSL bool) (*Client, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client init: %w", err)
	}
	return &Client{mc: mc}, nil
}

func (c *Client) Provider() string { return "minio" }

func (c *Client) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	bucket, object, err := SplitKey(key)
	if err != nil {
		return nil, err
	}

	obj, err := c.mc.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get %s: %w", key, err)
	}
	// GetObject is lazy; Stat surfaces a missing object before the copy starts.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("minio stat %s: %w", key, err)
	}
	return obj, nil
}

// SplitKey splits "{bucket}/{object}".
func SplitKey(key string) (bucket, object string, err error) {
	bucket, object, ok := strings.Cut(strings.TrimPrefix(key, "/"), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("minio key %q must look like bucket/object", key)
	}
	return bucket, object, nil
}
