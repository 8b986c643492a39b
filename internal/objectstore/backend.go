// Package objectstore is a small key/blob abstraction over the local
// filesystem, S3-compatible storage and Azure Blob Storage. Table stores
// built on it keep one object per entity.
package objectstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no object exists at the path.
	ErrNotFound = errors.New("object not found")

	// ErrExists is returned by Create when an object already exists at the path.
	ErrExists = errors.New("object already exists")
)

// Backend stores opaque objects addressed by slash-separated paths.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Ensure creates the bucket, container or directory if it is missing.
	Ensure(ctx context.Context) error

	// Create writes data to path only if no object exists there yet, and
	// returns ErrExists otherwise. The existence check and the write are a
	// single conditional operation on the storage side.
	Create(ctx context.Context, path string, data []byte) error

	// Get returns the object at path, or ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, error)

	// Delete removes the object at path. Missing objects are not an error.
	Delete(ctx context.Context, path string) error

	Close() error

	// Type returns "local", "s3" or "azblob".
	Type() string
}
