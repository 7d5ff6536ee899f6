// Package index builds, persists, and loads the page-level vector index.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-kb/internal/kb"
	"github.com/JakeFAU/campus-kb/internal/storage"
)

const defaultBatchSize = 32

// Config wires the indexer's collaborators.
type Config struct {
	Embedder  kb.Embedder
	Blobs     storage.BlobStore
	Hasher    kb.Hasher
	Clock     kb.Clock
	Object    string
	BatchSize int
}

// Indexer embeds corpus pages and stores the resulting index.
type Indexer struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and returns an Indexer.
func New(cfg Config, logger *zap.Logger) (*Indexer, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.Hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.Object == "" {
		return nil, fmt.Errorf("index object name is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{cfg: cfg, logger: logger.Named("index")}, nil
}

// Build embeds one document per page and stamps the index with the corpus
// stamp and model identity.
func (ix *Indexer) Build(ctx context.Context, pages []kb.PageRecord) (*kb.VectorIndex, error) {
	if err := kb.ValidateCorpus(pages); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	stamp, err := kb.Stamp(ix.cfg.Hasher, pages)
	if err != nil {
		return nil, err
	}

	entries := make([]kb.VectorEntry, 0, len(pages))
	dims := 0
	for start := 0; start < len(pages); start += ix.cfg.BatchSize {
		end := min(start+ix.cfg.BatchSize, len(pages))
		batch := pages[start:end]
		docs := make([]string, len(batch))
		for i, page := range batch {
			docs[i] = kb.DocumentText(page)
		}
		vectors, err := ix.cfg.Embedder.Embed(ctx, docs)
		if err != nil {
			return nil, fmt.Errorf("embed pages %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embed pages %d-%d: got %d vectors", start, end-1, len(vectors))
		}
		for i, vec := range vectors {
			if dims == 0 {
				dims = len(vec)
			}
			if len(vec) == 0 || len(vec) != dims {
				return nil, fmt.Errorf("embedding for %s has %d dimensions, want %d",
					batch[i].URL, len(vec), dims)
			}
			entries = append(entries, kb.VectorEntry{
				DocumentText: docs[i],
				Embedding:    vec,
				SourceURL:    batch[i].URL,
			})
		}
		ix.logger.Debug("embedded batch", zap.Int("start", start), zap.Int("size", len(batch)))
	}

	ix.logger.Info("index built",
		zap.Int("entries", len(entries)),
		zap.Int("dimensions", dims),
		zap.String("model", ix.cfg.Embedder.Model()),
	)
	return &kb.VectorIndex{
		CorpusStamp: stamp,
		Model:       ix.cfg.Embedder.Model(),
		Dimensions:  dims,
		BuiltAt:     ix.cfg.Clock.Now(),
		Entries:     entries,
	}, nil
}

// Save replaces the stored index.
func (ix *Indexer) Save(ctx context.Context, idx *kb.VectorIndex) error {
	if idx == nil {
		return fmt.Errorf("index is nil")
	}
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	uri, err := ix.cfg.Blobs.PutObject(ctx, ix.cfg.Object, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write index %s: %w", ix.cfg.Object, err)
	}
	ix.logger.Info("index saved", zap.String("uri", uri), zap.Int("bytes", len(data)))
	return nil
}

// Load reads the stored index and refuses it unless it was built from pages
// with the configured model.
func (ix *Indexer) Load(ctx context.Context, pages []kb.PageRecord) (*kb.VectorIndex, error) {
	data, err := ix.cfg.Blobs.GetObject(ctx, ix.cfg.Object)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: no index at %s", kb.ErrIndexVersionMismatch, ix.cfg.Object)
	}
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", ix.cfg.Object, err)
	}
	var idx kb.VectorIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}

	stamp, err := kb.Stamp(ix.cfg.Hasher, pages)
	if err != nil {
		return nil, err
	}
	switch {
	case idx.CorpusStamp != stamp:
		return nil, fmt.Errorf("%w: index built from corpus %s, loaded corpus is %s",
			kb.ErrIndexVersionMismatch, short(idx.CorpusStamp), short(stamp))
	case idx.Model != ix.cfg.Embedder.Model():
		return nil, fmt.Errorf("%w: index model %q, configured %q",
			kb.ErrIndexVersionMismatch, idx.Model, ix.cfg.Embedder.Model())
	case len(idx.Entries) != len(pages):
		return nil, fmt.Errorf("%w: %d entries for %d pages",
			kb.ErrIndexVersionMismatch, len(idx.Entries), len(pages))
	}
	for i, e := range idx.Entries {
		if len(e.Embedding) != idx.Dimensions {
			return nil, fmt.Errorf("%w: entry %d has %d dimensions, want %d",
				kb.ErrIndexVersionMismatch, i, len(e.Embedding), idx.Dimensions)
		}
	}
	return &idx, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func short(stamp string) string {
	if len(stamp) > 12 {
		return stamp[:12]
	}
	return stamp
}
