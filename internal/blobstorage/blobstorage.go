// Package blobstorage stores raw messages as objects grouped by folder prefix.
package blobstorage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mailgate/internal/conf"
)

// ErrNotFound is returned when an object key does not exist.
var ErrNotFound = errors.New("object not found")

// Object describes one stored object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// BlobStorage is an object store keyed by slash-separated paths.
type BlobStorage interface {
	// List returns every object whose key starts with prefix, in key order.
	List(ctx context.Context, prefix string) ([]Object, error)
	Retrieve(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte) error
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
}

// New opens the backend named in cfg.
func New(ctx context.Context, cfg conf.StorageConfig, awsCfg conf.AWSConfig) (BlobStorage, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3BlobStorage(ctx, cfg.Bucket, awsCfg)
	case "bolt":
		return NewBoltBlobStorage(cfg.BoltPath)
	case "memory":
		return NewMemoryBlobStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Close releases the backend if it holds resources.
func Close(b BlobStorage) error {
	if c, ok := b.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
