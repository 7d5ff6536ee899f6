// Package storage defines the blob store used for corpus and index artifacts.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by GetObject when no object exists at the path.
var ErrNotFound = errors.New("object not found")

// BlobStore persists whole artifacts. PutObject replaces any previous object
// at path in one step: readers see the old bytes or the new bytes, never a mix.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}
