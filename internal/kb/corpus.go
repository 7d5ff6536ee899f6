package kb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EncodeCorpus renders pages as the canonical, human-inspectable JSON array.
// HTML escaping is disabled so scraped text round-trips byte for byte.
func EncodeCorpus(pages []PageRecord) ([]byte, error) {
	if pages == nil {
		pages = []PageRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pages); err != nil {
		return nil, fmt.Errorf("encode corpus: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCorpus parses and validates a corpus artifact.
func DecodeCorpus(data []byte) ([]PageRecord, error) {
	var pages []PageRecord
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrCorpusUnavailable, err)
	}
	if err := ValidateCorpus(pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// ValidateCorpus enforces the corpus invariants: at least one page, unique
// URLs, and non-empty blocks on every record.
func ValidateCorpus(pages []PageRecord) error {
	if len(pages) == 0 {
		return fmt.Errorf("%w: corpus is empty", ErrCorpusUnavailable)
	}
	seen := make(map[string]struct{}, len(pages))
	for i, page := range pages {
		if strings.TrimSpace(page.URL) == "" {
			return fmt.Errorf("%w: record %d has no url", ErrCorpusUnavailable, i)
		}
		if _, dup := seen[page.URL]; dup {
			return fmt.Errorf("%w: duplicate url %s", ErrCorpusUnavailable, page.URL)
		}
		seen[page.URL] = struct{}{}
		if len(page.Blocks) == 0 {
			return fmt.Errorf("%w: record %s has no content", ErrCorpusUnavailable, page.URL)
		}
	}
	return nil
}

// Stamp computes the version stamp of a corpus snapshot: the hasher digest of
// its canonical encoding. The index records it so mismatched pairs are refused.
func Stamp(h Hasher, pages []PageRecord) (string, error) {
	data, err := EncodeCorpus(pages)
	if err != nil {
		return "", err
	}
	sum, err := h.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash corpus: %w", err)
	}
	return sum, nil
}

// DocumentText is the text embedded for a page: its blocks joined with a
// space and a trailing provenance marker.
func DocumentText(page PageRecord) string {
	return strings.Join(page.Blocks, " ") + "\nSource: " + page.URL
}
