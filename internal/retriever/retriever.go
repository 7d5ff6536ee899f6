// Package retriever ranks corpus blocks against a question and assembles the
// answer, its sources, and any contact details found in the selected blocks.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-kb/internal/index"
	"github.com/JakeFAU/campus-kb/internal/kb"
	"github.com/JakeFAU/campus-kb/internal/metrics"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultTopK                 = 3
	DefaultMaxQueryChars        = 1024
	DefaultMinVectorScore       = 0.35
	DefaultQueryEmbedTimeout    = 2 * time.Second
	DefaultVectorCandidateLimit = 3
	answerSeparator             = "\n\n"
)

// Config tunes retrieval. Index, Embedder, and Synthesizer are optional.
type Config struct {
	TopK                 int
	MaxQueryChars        int
	MinVectorScore       float64
	QueryEmbedTimeout    time.Duration
	VectorCandidateLimit int

	Index       *kb.VectorIndex
	Embedder    kb.Embedder
	Synthesizer kb.Synthesizer
}

// block is one lowercased corpus block with its position in discovery order.
type block struct {
	text  string
	lower string
	url   string
	order int
}

// Retriever holds the read-only corpus view. It is safe for concurrent use.
type Retriever struct {
	cfg    Config
	blocks []block
	// firstBlock maps a page index to the offset of its first block in blocks.
	firstBlock []int
	pageURLs   []string
	logger     *zap.Logger
}

// New indexes pages for lexical scans. pages must not be mutated afterwards.
func New(pages []kb.PageRecord, cfg Config, logger *zap.Logger) (*Retriever, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages to retrieve from", kb.ErrCorpusUnavailable)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxQueryChars <= 0 {
		cfg.MaxQueryChars = DefaultMaxQueryChars
	}
	if cfg.QueryEmbedTimeout <= 0 {
		cfg.QueryEmbedTimeout = DefaultQueryEmbedTimeout
	}
	if cfg.VectorCandidateLimit <= 0 {
		cfg.VectorCandidateLimit = DefaultVectorCandidateLimit
	}
	if cfg.Index != nil && len(cfg.Index.Entries) != len(pages) {
		return nil, fmt.Errorf("%w: %d index entries for %d pages",
			kb.ErrIndexVersionMismatch, len(cfg.Index.Entries), len(pages))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Retriever{
		cfg:        cfg,
		firstBlock: make([]int, len(pages)),
		pageURLs:   make([]string, len(pages)),
		logger:     logger.Named("retriever"),
	}
	for p, page := range pages {
		r.firstBlock[p] = len(r.blocks)
		r.pageURLs[p] = page.URL
		for _, text := range page.Blocks {
			r.blocks = append(r.blocks, block{
				text:  text,
				lower: strings.ToLower(text),
				url:   page.URL,
				order: len(r.blocks),
			})
		}
	}
	return r, nil
}

// VectorEnabled reports whether queries are also embedded.
func (r *Retriever) VectorEnabled() bool {
	return r.cfg.Index != nil && r.cfg.Embedder != nil
}

// Retrieve answers query. A query without matches yields kb.NoMatch, not an
// error; the only error is a cancelled or expired ctx.
func (r *Retriever) Retrieve(ctx context.Context, query string) (kb.Result, error) {
	start := time.Now()
	tokens := Tokenize(query, r.cfg.MaxQueryChars)
	if len(tokens) == 0 {
		metrics.ObserveQuery(metrics.QueryNoMatch, time.Since(start))
		return kb.NoMatch(), nil
	}

	candidates := r.lexical(tokens)
	if err := ctx.Err(); err != nil {
		return kb.Result{}, fmt.Errorf("retrieve: %w", err)
	}
	if r.VectorEnabled() {
		candidates = append(candidates, r.vector(ctx, tokens, candidates)...)
		if err := ctx.Err(); err != nil {
			return kb.Result{}, fmt.Errorf("retrieve: %w", err)
		}
	}
	if len(candidates) == 0 {
		metrics.ObserveQuery(metrics.QueryNoMatch, time.Since(start))
		return kb.NoMatch(), nil
	}
	if len(candidates) > r.cfg.TopK {
		candidates = candidates[:r.cfg.TopK]
	}

	result := r.assemble(candidates)
	if r.cfg.Synthesizer != nil {
		result.Answer = r.synthesize(ctx, query, candidates, result.Answer)
	}
	metrics.ObserveQuery(metrics.QueryMatched, time.Since(start))
	return result, nil
}

// Tokenize truncates query to maxChars runes, lowercases it, and returns its
// distinct whitespace-separated tokens in first-occurrence order.
func Tokenize(query string, maxChars int) []string {
	if maxChars > 0 {
		if runes := []rune(query); len(runes) > maxChars {
			query = string(runes[:maxChars])
		}
	}
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{}, len(fields))
	tokens := fields[:0]
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// lexical scores every block and returns the non-zero ones, best first, ties
// in discovery order.
func (r *Retriever) lexical(tokens []string) []kb.Candidate {
	var out []kb.Candidate
	for _, b := range r.blocks {
		score := 0
		for _, tok := range tokens {
			if strings.Contains(b.lower, tok) {
				score++
			}
		}
		if score == 0 {
			continue
		}
		out = append(out, kb.Candidate{
			Text:         b.text,
			SourceURL:    b.url,
			LexicalScore: score,
			Order:        b.order,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LexicalScore > out[j].LexicalScore
	})
	return out
}

type pageHit struct {
	page  int
	score float64
}

// vector embeds the normalized query and returns one candidate per page whose
// similarity clears the threshold, best first. Embedder failures degrade to
// lexical-only and are never returned.
func (r *Retriever) vector(ctx context.Context, tokens []string, existing []kb.Candidate) []kb.Candidate {
	timeout := r.cfg.QueryEmbedTimeout
	if deadline, ok := ctx.Deadline(); ok {
		// A quarter of the remaining request time stays reserved for the
		// lexical answer.
		if left := time.Until(deadline) * 3 / 4; left < timeout {
			timeout = left
		}
	}
	embedCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vectors, err := r.cfg.Embedder.Embed(embedCtx, []string{strings.Join(tokens, " ")})
	if err == nil && (len(vectors) != 1 || len(vectors[0]) != r.cfg.Index.Dimensions) {
		err = fmt.Errorf("query embedding shape mismatch")
	}
	if err != nil {
		if !errors.Is(err, kb.ErrEmbeddingUnavailable) {
			err = fmt.Errorf("%w: %w", kb.ErrEmbeddingUnavailable, err)
		}
		metrics.ObserveEmbeddingFallback()
		r.logger.Warn("query embedding failed; using lexical results only", zap.Error(err))
		return nil
	}
	query := vectors[0]

	hits := make([]pageHit, 0, len(r.cfg.Index.Entries))
	for p, entry := range r.cfg.Index.Entries {
		score := index.Cosine(query, entry.Embedding)
		if score >= r.cfg.MinVectorScore {
			hits = append(hits, pageHit{page: p, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	present := make(map[int]struct{}, len(existing))
	for _, c := range existing {
		present[c.Order] = struct{}{}
	}
	var out []kb.Candidate
	for _, hit := range hits {
		if len(out) == r.cfg.VectorCandidateLimit {
			break
		}
		b, ok := r.firstUnused(hit.page, present)
		if !ok {
			continue
		}
		present[b.order] = struct{}{}
		score := hit.score
		out = append(out, kb.Candidate{
			Text:        b.text,
			SourceURL:   b.url,
			VectorScore: &score,
			Order:       b.order,
		})
	}
	return out
}

// firstUnused returns the first block of page p not already a candidate.
func (r *Retriever) firstUnused(p int, present map[int]struct{}) (block, bool) {
	end := len(r.blocks)
	if p+1 < len(r.firstBlock) {
		end = r.firstBlock[p+1]
	}
	for i := r.firstBlock[p]; i < end; i++ {
		if _, used := present[i]; !used {
			return r.blocks[i], true
		}
	}
	return block{}, false
}

func (r *Retriever) assemble(candidates []kb.Candidate) kb.Result {
	texts := make([]string, len(candidates))
	sources := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
		if _, dup := seen[c.SourceURL]; dup {
			continue
		}
		seen[c.SourceURL] = struct{}{}
		sources = append(sources, c.SourceURL)
	}
	return kb.Result{
		Answer:      strings.Join(texts, answerSeparator),
		Sources:     sources,
		ContactInfo: ExtractContacts(texts),
		Matched:     true,
	}
}

func (r *Retriever) synthesize(ctx context.Context, query string, candidates []kb.Candidate, fallback string) string {
	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Text + "\nSource: " + c.SourceURL
	}
	answer, err := r.cfg.Synthesizer.Synthesize(ctx, query, passages)
	if err != nil || strings.TrimSpace(answer) == "" {
		r.logger.Warn("answer synthesis failed; returning retrieved passages", zap.Error(err))
		return fallback
	}
	return answer
}
