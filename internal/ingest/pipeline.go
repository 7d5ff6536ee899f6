// Package ingest runs the sequential scrape pass that rebuilds the corpus
// and, optionally, the vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-kb/internal/kb"
	"github.com/JakeFAU/campus-kb/internal/metrics"
)

// Promoter decides whether a fetched page should be re-rendered headlessly.
type Promoter interface {
	ShouldPromote(resp kb.FetchResponse) bool
}

// Indexer builds and persists the vector index for a corpus snapshot.
type Indexer interface {
	Build(ctx context.Context, pages []kb.PageRecord) (*kb.VectorIndex, error)
	Save(ctx context.Context, idx *kb.VectorIndex) error
}

// Config controls a pipeline run.
type Config struct {
	URLs  []string
	Topic string
}

// Deps are the collaborators of a Pipeline. Headless, Detector, Indexer and
// Publisher are optional.
type Deps struct {
	Fetcher   kb.Fetcher
	Headless  kb.Fetcher
	Detector  Promoter
	Extractor kb.Extractor
	Corpus    kb.CorpusStore
	Indexer   Indexer
	Publisher kb.Publisher
	Hasher    kb.Hasher
	Clock     kb.Clock
	IDs       kb.IDGenerator
}

// Failure records why one URL was not admitted.
type Failure struct {
	URL string
	Err error
}

// Summary aggregates the outcome of a run.
type Summary struct {
	RunID       string
	Attempted   int
	Scraped     int
	Failed      int
	Failures    []Failure
	CorpusStamp string
	Model       string
}

// Pipeline scrapes the configured URLs one at a time.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and returns a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Corpus == nil:
		return nil, fmt.Errorf("corpus store is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("hasher is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger.Named("ingest")}, nil
}

// Run attempts every configured URL, saves the admitted pages as the new
// corpus, rebuilds the index when an indexer is configured, and publishes a
// rebuild notification. A run that admits no page returns
// kb.ErrNoPagesScraped and leaves the stored corpus untouched.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	summary := Summary{RunID: runID}
	logger := p.logger.With(zap.String("run_id", runID))
	logger.Info("ingestion started", zap.Int("urls", len(p.cfg.URLs)))

	seen := make(map[string]struct{}, len(p.cfg.URLs))
	pages := make([]kb.PageRecord, 0, len(p.cfg.URLs))
	for _, url := range p.cfg.URLs {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("ingestion interrupted: %w", err)
		}
		if _, dup := seen[url]; dup {
			logger.Debug("skipping duplicate url", zap.String("url", url))
			continue
		}
		seen[url] = struct{}{}

		summary.Attempted++
		page, err := p.scrape(ctx, url)
		if err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{URL: url, Err: err})
			logger.Warn("page not admitted", zap.String("url", url), zap.Error(err))
			continue
		}
		summary.Scraped++
		pages = append(pages, page)
		logger.Info("page scraped", zap.String("url", url), zap.Int("blocks", len(page.Blocks)))
	}

	if len(pages) == 0 {
		logger.Error("no pages scraped", zap.Int("attempted", summary.Attempted))
		return summary, kb.ErrNoPagesScraped
	}

	if err := p.deps.Corpus.Save(ctx, pages); err != nil {
		return summary, fmt.Errorf("save corpus: %w", err)
	}
	stamp, err := kb.Stamp(p.deps.Hasher, pages)
	if err != nil {
		return summary, err
	}
	summary.CorpusStamp = stamp
	logger.Info("corpus saved",
		zap.Int("pages", len(pages)),
		zap.Int("failed", summary.Failed),
		zap.String("corpus_stamp", stamp),
	)
	p.publish(ctx, logger, kb.RebuildEvent{
		RunID:       runID,
		Kind:        kb.RebuildCorpus,
		CorpusStamp: stamp,
		Pages:       len(pages),
		Failed:      summary.Failed,
		FinishedAt:  p.deps.Clock.Now(),
	})

	if p.deps.Indexer == nil {
		return summary, nil
	}
	model, err := p.index(ctx, logger, runID, pages)
	if err != nil {
		return summary, err
	}
	summary.Model = model
	return summary, nil
}

// Reindex rebuilds the vector index from the stored corpus.
func (p *Pipeline) Reindex(ctx context.Context) (Summary, error) {
	if p.deps.Indexer == nil {
		return Summary{}, fmt.Errorf("no indexer configured")
	}
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := p.logger.With(zap.String("run_id", runID))
	pages, err := p.deps.Corpus.Load(ctx)
	if err != nil {
		return Summary{RunID: runID}, fmt.Errorf("load corpus: %w", err)
	}
	stamp, err := kb.Stamp(p.deps.Hasher, pages)
	if err != nil {
		return Summary{RunID: runID}, err
	}
	model, err := p.index(ctx, logger, runID, pages)
	if err != nil {
		return Summary{RunID: runID}, err
	}
	return Summary{
		RunID:       runID,
		Scraped:     len(pages),
		CorpusStamp: stamp,
		Model:       model,
	}, nil
}

func (p *Pipeline) index(ctx context.Context, logger *zap.Logger, runID string, pages []kb.PageRecord) (string, error) {
	idx, err := p.deps.Indexer.Build(ctx, pages)
	if err != nil {
		return "", fmt.Errorf("build index: %w", err)
	}
	if err := p.deps.Indexer.Save(ctx, idx); err != nil {
		return "", fmt.Errorf("save index: %w", err)
	}
	logger.Info("index saved",
		zap.Int("entries", len(idx.Entries)),
		zap.String("model", idx.Model),
		zap.Int("dimensions", idx.Dimensions),
	)
	p.publish(ctx, logger, kb.RebuildEvent{
		RunID:       runID,
		Kind:        kb.RebuildIndex,
		CorpusStamp: idx.CorpusStamp,
		Pages:       len(idx.Entries),
		Model:       idx.Model,
		FinishedAt:  p.deps.Clock.Now(),
	})
	return idx.Model, nil
}

// scrape fetches and extracts one URL, falling back to the headless fetcher
// for script-rendered shells and pages that yield no text.
func (p *Pipeline) scrape(ctx context.Context, url string) (kb.PageRecord, error) {
	resp, err := p.deps.Fetcher.Fetch(ctx, url)
	if err != nil {
		metrics.ObservePage(url, metrics.PageFailed, 0)
		return kb.PageRecord{}, fmt.Errorf("fetch: %w", err)
	}

	if p.deps.Detector != nil && p.deps.Detector.ShouldPromote(resp) {
		if rendered, ok := p.render(ctx, url); ok {
			resp = rendered
		}
	}

	page, err := p.deps.Extractor.Extract(resp.Body, url)
	if errors.Is(err, kb.ErrNoContent) && !resp.UsedHeadless {
		if rendered, ok := p.render(ctx, url); ok {
			resp = rendered
			page, err = p.deps.Extractor.Extract(resp.Body, url)
		}
	}
	if err != nil {
		status := metrics.PageFailed
		if errors.Is(err, kb.ErrNoContent) {
			status = metrics.PageNoText
		}
		metrics.ObservePage(url, status, len(resp.Body))
		return kb.PageRecord{}, fmt.Errorf("extract: %w", err)
	}
	metrics.ObservePage(url, metrics.PageScraped, len(resp.Body))
	return page, nil
}

func (p *Pipeline) render(ctx context.Context, url string) (kb.FetchResponse, bool) {
	if p.deps.Headless == nil {
		return kb.FetchResponse{}, false
	}
	resp, err := p.deps.Headless.Fetch(ctx, url)
	if err != nil {
		p.logger.Warn("headless render failed", zap.String("url", url), zap.Error(err))
		return kb.FetchResponse{}, false
	}
	resp.UsedHeadless = true
	p.logger.Info("headless render applied", zap.String("url", url))
	return resp, true
}

// publish sends a rebuild notification. The artifacts are already saved, so
// a publish failure is logged rather than failing the run.
func (p *Pipeline) publish(ctx context.Context, logger *zap.Logger, event kb.RebuildEvent) {
	if p.deps.Publisher == nil || p.cfg.Topic == "" {
		return
	}
	id, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, event)
	if err != nil {
		logger.Warn("rebuild notification failed", zap.String("kind", event.Kind), zap.Error(err))
		return
	}
	logger.Info("rebuild notification published",
		zap.String("kind", event.Kind),
		zap.String("topic", p.cfg.Topic),
		zap.String("message_id", id),
	)
}
