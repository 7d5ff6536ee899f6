package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-kb/internal/kb"
	"github.com/JakeFAU/campus-kb/internal/llm"
	"github.com/JakeFAU/campus-kb/internal/metrics"
	"github.com/JakeFAU/campus-kb/internal/retriever"
)

// Runtime is the immutable query-time view: the loaded corpus, the optional
// vector index, and the retriever over them. It is safe for concurrent use.
type Runtime struct {
	Pages     []kb.PageRecord
	Index     *kb.VectorIndex
	Retriever *retriever.Retriever
}

// Retrieve answers one query.
func (r *Runtime) Retrieve(ctx context.Context, query string) (kb.Result, error) {
	return r.Retriever.Retrieve(ctx, query)
}

// Load reads the corpus and, when enabled, the matching vector index. Any
// failure is returned; the service must not start without a runtime.
func Load(ctx context.Context, s *Services) (*Runtime, error) {
	cfg := s.cfg
	logger := s.logger.Named("runtime")

	pages, err := s.Corpus.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	rcfg := retriever.Config{
		TopK:                 cfg.Retrieval.TopK,
		MaxQueryChars:        cfg.Retrieval.MaxQueryChars,
		MinVectorScore:       cfg.Retrieval.MinVectorScore,
		QueryEmbedTimeout:    cfg.QueryEmbedTimeout(),
		VectorCandidateLimit: cfg.Retrieval.VectorCandidateLimit,
	}

	var idx *kb.VectorIndex
	if cfg.Index.Enabled {
		embedder, err := s.Embedder(true)
		if err != nil {
			return nil, err
		}
		ix, err := s.Indexer(embedder)
		if err != nil {
			return nil, err
		}
		idx, err = ix.Load(ctx, pages)
		if err != nil {
			return nil, fmt.Errorf("load index: %w", err)
		}
		rcfg.Index = idx
		rcfg.Embedder = embedder
	}

	if cfg.Synth.Enabled {
		synth, err := llm.New(llm.Config{
			BaseURL:     cfg.Synth.BaseURL,
			Model:       cfg.Synth.Model,
			APIToken:    cfg.Synth.APIToken,
			Temperature: cfg.Synth.Temperature,
			Timeout:     cfg.SynthTimeout(),
		}, nil, s.logger)
		if err != nil {
			return nil, fmt.Errorf("synthesizer init failed: %w", err)
		}
		rcfg.Synthesizer = synth
	}

	r, err := retriever.New(pages, rcfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("build retriever: %w", err)
	}

	entries := 0
	if idx != nil {
		entries = len(idx.Entries)
	}
	metrics.SetLoaded(len(pages), entries)
	logger.Info("runtime loaded",
		zap.Int("pages", len(pages)),
		zap.Int("index_entries", entries),
		zap.Bool("vector", r.VectorEnabled()),
		zap.Bool("synthesizer", rcfg.Synthesizer != nil),
	)
	return &Runtime{Pages: pages, Index: idx, Retriever: r}, nil
}
