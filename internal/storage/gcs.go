package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/brazeiro63/vovo-achados-portal/config"
	"google.golang.org/api/option"
)

// GCSClient keeps product and blog images in a Google Cloud Storage bucket
// with uniform access. Visitors read them through the public URL, so the
// bucket must grant allUsers the object viewer role.
type GCSClient struct {
	bucket    *storage.BucketHandle
	client    *storage.Client
	name      string
	projectID string
	location  string
}

func NewGCSClient(ctx context.Context, cfg config.GCSConfig) (*GCSClient, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &GCSClient{
		bucket:    client.Bucket(cfg.Bucket),
		client:    client,
		name:      cfg.Bucket,
		projectID: cfg.ProjectID,
		location:  cfg.Location,
	}, nil
}

// EnsureBucket creates the bucket with uniform bucket-level access when it
// does not exist yet.
func (g *GCSClient) EnsureBucket(ctx context.Context) error {
	_, err := g.bucket.Attrs(ctx)
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return err
	}
	if strings.TrimSpace(g.projectID) == "" {
		return errors.New("gcs project id is required to create bucket")
	}
	return g.bucket.Create(ctx, g.projectID, &storage.BucketAttrs{
		Location:                 g.location,
		UniformBucketLevelAccess: storage.UniformBucketLevelAccess{Enabled: true},
	})
}

// Put writes the image in a single request; images are small enough that
// resumable uploads only add round trips.
func (g *GCSClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	w := g.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ChunkSize = 0
	w.ContentType = contentType
	w.CacheControl = immutableCacheControl
	if _, err := io.CopyN(w, r, size); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return w.Close()
}

// Delete is idempotent: removing a missing image succeeds.
func (g *GCSClient) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (g *GCSClient) PublicURL(key string) string {
	return "https://storage.googleapis.com/" + g.name + "/" + key
}

func (g *GCSClient) Close() error {
	return g.client.Close()
}
