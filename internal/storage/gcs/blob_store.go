// Package gcs mirrors knowledge base artifacts into a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the bucket and key prefix for mirrored artifacts.
type Config struct {
	Bucket string
	Prefix string
}

// objectWriter is the subset of *storage.Writer used for uploads.
type objectWriter interface {
	io.Writer
	Close() error
	SetContentType(string)
}

type gcsWriter struct {
	*storage.Writer
}

func (w gcsWriter) SetContentType(ct string) { w.ContentType = ct }

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	bucket    string
	prefix    string
	newWriter func(ctx context.Context, object string) objectWriter
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	s, err := newBlobStore(cfg)
	if err != nil {
		return nil, err
	}
	s.newWriter = func(ctx context.Context, object string) objectWriter {
		return gcsWriter{client.Bucket(cfg.Bucket).Object(object).NewWriter(ctx)}
	}
	return s, nil
}

func newBlobStore(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName returns the object key used for p.
func (s *BlobStore) ObjectName(p string) string {
	p = strings.TrimLeft(p, "/")
	if s.prefix == "" {
		return p
	}
	return path.Join(s.prefix, p)
}

// PutObject uploads data under the configured prefix and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, p string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("path is required")
	}
	object := s.ObjectName(p)
	writer := s.newWriter(ctx, object)
	if contentType != "" {
		writer.SetContentType(contentType)
	}
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object %s: %w (close writer: %v)", object, err, closeErr)
		}
		return "", fmt.Errorf("copy object %s: %w", object, err)
	}
	// The object is only committed on Close.
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer for %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}
