package app

import (
	"fmt"

	"github.com/JakeFAU/campus-kb/internal/extractor"
	collyfetcher "github.com/JakeFAU/campus-kb/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/campus-kb/internal/fetcher/headless"
	"github.com/JakeFAU/campus-kb/internal/headless/detector"
	"github.com/JakeFAU/campus-kb/internal/id/uuid"
	"github.com/JakeFAU/campus-kb/internal/ingest"
)

// Pipeline wires an ingestion pipeline from configuration. withIndex adds
// the index rebuild step. The returned cleanup stops the headless browser.
func (s *Services) Pipeline(withIndex bool) (*ingest.Pipeline, func(), error) {
	cfg := s.cfg
	base, maxDelay := cfg.Backoff()
	deps := ingest.Deps{
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent:      cfg.Ingest.UserAgent,
			AcceptLanguage: cfg.Ingest.AcceptLanguage,
			Timeout:        cfg.FetchTimeout(),
			Delay:          cfg.FetchDelay(),
			Retry:          collyfetcher.NewRetryPolicy(cfg.Ingest.MaxRetries, base, maxDelay, cfg.Ingest.RetryStatuses),
		}, s.logger),
		Corpus:    s.Corpus,
		Publisher: s.Publisher,
		Hasher:    s.hasher,
		Clock:     s.clock,
		IDs:       uuid.New(),
	}

	ext, err := extractor.New(extractor.Config{
		Selectors:      extractor.CSSSelectors(cfg.Extract.Selectors),
		BlockTags:      cfg.Extract.BlockTags,
		SkipClasses:    cfg.Extract.SkipClasses,
		MinBlockLength: cfg.Extract.MinBlockLength,
	}, s.clock)
	if err != nil {
		return nil, nil, fmt.Errorf("extractor init failed: %w", err)
	}
	deps.Extractor = ext

	if withIndex {
		embedder, err := s.Embedder(false)
		if err != nil {
			return nil, nil, err
		}
		if deps.Indexer, err = s.Indexer(embedder); err != nil {
			return nil, nil, err
		}
	}

	cleanup := func() {}
	if cfg.Ingest.Headless.Enabled {
		headless := headlessfetcher.NewChromedp(headlessfetcher.Config{
			UserAgent:         cfg.Ingest.UserAgent,
			AcceptLanguage:    cfg.Ingest.AcceptLanguage,
			NavigationTimeout: cfg.HeadlessTimeout(),
		})
		deps.Headless = headless
		deps.Detector = detector.NewHeuristic(cfg.Ingest.Headless.MinTextRunes)
		cleanup = headless.Close
	}

	p, err := ingest.New(deps, ingest.Config{
		URLs:  cfg.Ingest.URLs,
		Topic: cfg.Publish.Topic,
	}, s.logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}
