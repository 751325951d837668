// Package storage defines the blob store abstraction backing the content
// cache. Implementations exist for the local filesystem, memory, and GCS.
package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by GetObject when no blob exists at the path.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore reads and writes raw artifacts by path.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}
