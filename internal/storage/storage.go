// Package storage keeps generated reports in an object store.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/reverside/timetracker/config"
)

// ErrDisabled is returned by New when no storage backend is configured.
var ErrDisabled = errors.New("object storage is disabled")

// ErrObjectNotFound is returned when a key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Object describes a stored object.
type Object struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Storage wraps an ObjectStorage backend and scopes keys under a prefix.
type Storage struct {
	backend ObjectStorage
	prefix  string
}

// NewStorage constructs a Storage for backend with keys placed under prefix.
func NewStorage(backend ObjectStorage, prefix string) *Storage {
	return &Storage{backend: backend, prefix: strings.Trim(prefix, "/")}
}

// New builds the backend selected by cfg.Backend and makes sure its bucket
// exists. It returns ErrDisabled for "none" or an empty backend.
func New(ctx context.Context, cfg config.StorageConfig, prefix string) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, ErrDisabled
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return NewStorage(backend, prefix), nil
}

// Key returns the full object key for name.
func (s *Storage) Key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// PutBytes uploads data under name and describes the stored object.
func (s *Storage) PutBytes(ctx context.Context, name string, data []byte, contentType string) (Object, error) {
	key := s.Key(name)
	if err := s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return Object{}, fmt.Errorf("put %s: %w", key, err)
	}
	return Object{
		Bucket:      s.backend.Bucket(),
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

// Open returns a reader for name. Missing objects yield ErrObjectNotFound.
func (s *Storage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, s.Key(name))
}

// Delete removes name from the bucket.
func (s *Storage) Delete(ctx context.Context, name string) error {
	return s.backend.Delete(ctx, s.Key(name))
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}
