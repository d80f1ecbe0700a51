package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"vidharvest/internal/textutil"
)

// Gateway is the object storage contract used by the pipeline.
type Gateway interface {
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	// Head reports whether the object exists. A missing object is (false, nil).
	Head(ctx context.Context, bucket, key string) (bool, error)
	Delete(ctx context.Context, bucket, key string) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	// Ping verifies the bucket is reachable.
	Ping(ctx context.Context, bucket string) error
}

// ErrUnreachable marks failures to talk to the object store at all.
var ErrUnreachable = errors.New("object store unreachable")

const (
	ContentTypeMP4  = "video/mp4"
	ContentTypeJPEG = "image/jpeg"
)

// MediaKey builds the content-addressed key for a media object. Its base name
// is MediaFileName.
func MediaKey(folder, code, hash string) string {
	return joinKey(folder, MediaFileName(code, hash))
}

// MediaFileName returns the base name used for a media object.
func MediaFileName(code, hash string) string {
	return textutil.SanitizeKeySegment(code) + "_" + hash + ".mp4"
}

// ThumbnailKey builds the key for a mirrored poster.
func ThumbnailKey(folder, code string) string {
	return joinKey(folder, strings.ToLower(code)+".jpg")
}

func joinKey(folder, name string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// ObjectURL returns the public retrieval URL for a key. The path is escaped so
// ParseObjectURL recovers the exact key.
func ObjectURL(endpoint, bucket, key string) string {
	u := url.URL{
		Scheme: "https",
		Host:   strings.TrimSuffix(endpoint, "/"),
		Path:   "/" + bucket + "/" + strings.TrimPrefix(key, "/"),
	}
	return u.String()
}

// ParseObjectURL splits a public retrieval URL into bucket and key.
func ParseObjectURL(raw string) (bucket, key string, err error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("parse object url: %w", err)
	}
	if parsed.Host == "" {
		return "", "", fmt.Errorf("parse object url %q: missing host", raw)
	}
	path := strings.TrimPrefix(parsed.Path, "/")
	bucket, key, ok := strings.Cut(path, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("parse object url %q: expected /{bucket}/{key}", raw)
	}
	return bucket, key, nil
}
