// Package storage keeps product and blog images in object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/brazeiro63/vovo-achados-portal/config"
	"github.com/google/uuid"
)

// ErrDisabled is returned when no storage backend is configured.
var ErrDisabled = errors.New("image storage is not configured")

// ErrUnsupportedType is returned for uploads that are not images.
var ErrUnsupportedType = errors.New("unsupported image type")

// MaxImageSize bounds a single upload.
const MaxImageSize = 5 << 20

// Image keys are never reused, so stored objects can be cached forever.
const immutableCacheControl = "public, max-age=31536000, immutable"

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ObjectStorage is implemented by the MinIO and GCS clients.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	// PublicURL is where a stored object can be fetched by visitors.
	PublicURL(key string) string
}

// Storage stores uploaded images under dated keys.
type Storage struct {
	backend ObjectStorage
	baseURL string
	now     func() time.Time
}

// NewStorage wraps backend. When publicBaseURL is set, it replaces the
// backend's own URLs (CDN in front of the bucket).
func NewStorage(backend ObjectStorage, publicBaseURL string) *Storage {
	return &Storage{
		backend: backend,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		now:     time.Now,
	}
}

// Open builds the backend selected by cfg.Storage.Backend. It returns a nil
// *Storage, which rejects uploads with ErrDisabled, for "none".
func Open(ctx context.Context, cfg config.Config) (*Storage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "", "none":
		return nil, nil
	case "minio":
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		return NewStorage(client, cfg.Storage.PublicBaseURL), nil
	case "gcs":
		client, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		return NewStorage(client, cfg.Storage.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Close releases the backend client when it holds one.
func (s *Storage) Close() error {
	if s == nil {
		return nil
	}
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// EnsureBucket creates the bucket when missing.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.backend.EnsureBucket(ctx)
}

// Image is a stored upload.
type Image struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// PutImage stores an image under images/<yyyy>/<mm>/<uuid><ext> and returns
// its public URL.
func (s *Storage) PutImage(ctx context.Context, r io.Reader, size int64, contentType string) (Image, error) {
	if s == nil {
		return Image{}, ErrDisabled
	}
	contentType, ok := DetectImageType(contentType)
	if !ok {
		return Image{}, ErrUnsupportedType
	}
	ext := imageExtensions[contentType]
	if size <= 0 || size > MaxImageSize {
		return Image{}, fmt.Errorf("image size %d out of range", size)
	}

	now := s.now().UTC()
	key := path.Join("images", now.Format("2006"), now.Format("01"), uuid.NewString()+ext)
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return Image{}, fmt.Errorf("put %s: %w", key, err)
	}
	return Image{Key: key, URL: s.URL(key)}, nil
}

// DeleteImage removes a stored image by key.
func (s *Storage) DeleteImage(ctx context.Context, key string) error {
	if s == nil {
		return ErrDisabled
	}
	return s.backend.Delete(ctx, key)
}

func (s *Storage) URL(key string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + key
	}
	return s.backend.PublicURL(key)
}

// DetectImageType normalizes a Content-Type header; ok is false for anything
// that is not a supported image.
func DetectImageType(contentType string) (string, bool) {
	contentType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	_, ok := imageExtensions[contentType]
	return contentType, ok
}
