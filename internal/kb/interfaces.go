package kb

import (
	"context"
	"time"
)

// Fetcher retrieves the raw HTML for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Extractor turns raw HTML into a page record.
type Extractor interface {
	Extract(html []byte, url string) (PageRecord, error)
}

// CorpusStore persists the full set of page records.
type CorpusStore interface {
	Save(ctx context.Context, pages []PageRecord) error
	Load(ctx context.Context) ([]PageRecord, error)
}

// Embedder maps text to fixed-length vectors. The same input must yield the
// same vector for a given model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Synthesizer rewrites retrieved passages into a single answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, passages []string) (string, error)
}

// Publisher pushes rebuild notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for corpus stamps and cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
