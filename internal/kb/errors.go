package kb

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks fetch failures after retries are exhausted or for
	// non-retryable responses.
	ErrNetwork = errors.New("network error")
	// ErrNoContent marks pages that yield no usable text blocks.
	ErrNoContent = errors.New("no content extracted")
	// ErrCorpusUnavailable marks a missing or malformed corpus.
	ErrCorpusUnavailable = errors.New("corpus unavailable")
	// ErrIndexVersionMismatch marks an index built from a different corpus or model.
	ErrIndexVersionMismatch = errors.New("index version mismatch")
	// ErrInvalidRequest marks a client request without query text.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmbeddingUnavailable marks a failed or timed-out embedding call.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrNoPagesScraped is returned when an ingestion run admits zero pages.
	ErrNoPagesScraped = errors.New("no pages scraped")
)

// FetchError describes a per-URL fetch failure.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

// Unwrap exposes both ErrNetwork and the underlying cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNetwork}
	}
	return []error{ErrNetwork, e.Err}
}
