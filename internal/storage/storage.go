package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when no object exists at the given key.
var ErrNotFound = errors.New("storage: object not found")

// Store is the object storage capability consumed by the API and the worker.
// Keys are slash-separated relative paths. Delete is idempotent: removing an
// absent object is not an error.
type Store interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	SignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	SignedUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}
