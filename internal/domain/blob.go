package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader checks stored objects.
type BlobReader interface {
	Exists(ctx context.Context, path string) (bool, error)
}
