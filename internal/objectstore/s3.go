package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"vidharvest/internal/config"
)

// S3 talks to an S3-compatible endpoint.
type S3 struct {
	client *minio.Client
}

// NewS3 builds a gateway from storage settings.
func NewS3(cfg config.Storage) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &S3{client: client}, nil
}

// Put uploads body under key. Keys are content addressed so repeats are safe.
func (s *S3) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return classify(fmt.Errorf("put %s/%s: %w", bucket, key, err))
	}
	return nil
}

// Head reports whether key exists.
func (s *S3) Head(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, classify(fmt.Errorf("head %s/%s: %w", bucket, key, err))
}

// Delete removes key. Removing a missing key is not an error.
func (s *S3) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classify(fmt.Errorf("delete %s/%s: %w", bucket, key, err))
	}
	return nil
}

// PresignGet returns a time-limited download URL.
func (s *S3) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, key, err)
	}
	return u.String(), nil
}

// Ping checks that the bucket exists and credentials work.
func (s *S3) Ping(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if !exists {
		return fmt.Errorf("%w: bucket %q does not exist", ErrUnreachable, bucket)
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}

// classify tags transport-level failures (no HTTP response at all) as unreachable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if minio.ToErrorResponse(errors.Unwrap(err)).StatusCode == 0 {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return err
}
