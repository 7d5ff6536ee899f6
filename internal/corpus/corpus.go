// Package corpus stores the page corpus as a single JSON artifact in a blob store.
package corpus

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/campus-kb/internal/kb"
	"github.com/JakeFAU/campus-kb/internal/storage"
)

const contentType = "application/json; charset=utf-8"

// BlobCorpusStore implements kb.CorpusStore over a storage.BlobStore.
type BlobCorpusStore struct {
	blobs  storage.BlobStore
	object string
}

var _ kb.CorpusStore = (*BlobCorpusStore)(nil)

// NewBlobCorpusStore returns a store reading and writing object in blobs.
func NewBlobCorpusStore(blobs storage.BlobStore, object string) (*BlobCorpusStore, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if object == "" {
		return nil, fmt.Errorf("corpus object name is required")
	}
	return &BlobCorpusStore{blobs: blobs, object: object}, nil
}

// Save validates and writes the whole corpus, replacing the previous artifact.
func (s *BlobCorpusStore) Save(ctx context.Context, pages []kb.PageRecord) error {
	if err := kb.ValidateCorpus(pages); err != nil {
		return fmt.Errorf("save corpus: %w", err)
	}
	data, err := kb.EncodeCorpus(pages)
	if err != nil {
		return err
	}
	if _, err := s.blobs.PutObject(ctx, s.object, contentType, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write corpus %s: %w", s.object, err)
	}
	return nil
}

// Load reads the corpus. A missing, malformed, or empty artifact is
// kb.ErrCorpusUnavailable.
func (s *BlobCorpusStore) Load(ctx context.Context) ([]kb.PageRecord, error) {
	data, err := s.blobs.GetObject(ctx, s.object)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", kb.ErrCorpusUnavailable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", kb.ErrCorpusUnavailable, s.object, err)
	}
	pages, err := kb.DecodeCorpus(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.object, err)
	}
	return pages, nil
}
