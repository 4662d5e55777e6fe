// Package storage keeps creator media in a private S3-compatible bucket and
// issues time-limited signed URLs for it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/monitizeclub/monitize-backend/internal/config"
)

// ErrDisabled is returned when no storage endpoint is configured.
var ErrDisabled = errors.New("storage disabled")

// ErrInvalidPath is returned for empty or escaping object paths.
var ErrInvalidPath = errors.New("invalid object path")

// Store is the object storage surface used by the services.
type Store interface {
	SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
	Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, objectPath string) error
}

// Minio is a Store backed by minio-go.
type Minio struct {
	client *minio.Client
	bucket string
}

// NewMinio connects to the bucket described by cfg. It does not perform any
// network I/O; presigning is computed locally because the region is fixed.
func NewMinio(cfg config.StorageConfig) (*Minio, error) {
	if cfg.Endpoint == "" {
		return nil, ErrDisabled
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &Minio{client: client, bucket: cfg.Bucket}, nil
}

// CleanPath normalizes an object path and rejects empty or parent-escaping ones.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", ErrInvalidPath
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	if cleaned == "" || cleaned == "." || strings.Contains(p, "..") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

// SignedURL returns a presigned GET URL for objectPath valid for ttl.
func (m *Minio) SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	p, err := CleanPath(objectPath)
	if err != nil {
		return "", err
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, p, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", p, err)
	}
	return u.String(), nil
}

// Upload stores r at objectPath.
func (m *Minio) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) error {
	p, err := CleanPath(objectPath)
	if err != nil {
		return err
	}
	if _, err := m.client.PutObject(ctx, m.bucket, p, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("put object %s: %w", p, err)
	}
	return nil
}

// Remove deletes objectPath. Removing a missing object is not an error.
func (m *Minio) Remove(ctx context.Context, objectPath string) error {
	p, err := CleanPath(objectPath)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, p, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", p, err)
	}
	return nil
}
