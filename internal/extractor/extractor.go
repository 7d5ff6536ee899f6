// Package extractor turns raw HTML into ordered text blocks using goquery.
package extractor

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/campus-kb/internal/kb"
)

// Selector locates a candidate main-content container. Match returns an empty
// selection when the container is absent.
type Selector struct {
	Name  string
	Match func(doc *goquery.Document) *goquery.Selection
}

// CSSSelector builds a Selector that returns the first element matching css.
func CSSSelector(css string) Selector {
	return Selector{
		Name: css,
		Match: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(css).First()
		},
	}
}

// CSSSelectors converts a configured list into Selectors, preserving order.
func CSSSelectors(list []string) []Selector {
	out := make([]Selector, 0, len(list))
	for _, css := range list {
		css = strings.TrimSpace(css)
		if css == "" {
			continue
		}
		out = append(out, CSSSelector(css))
	}
	return out
}

// Config controls extraction behavior.
type Config struct {
	Selectors      []Selector
	BlockTags      []string
	SkipClasses    []string
	MinBlockLength int
}

// Extractor implements kb.Extractor.
type Extractor struct {
	selectors   []Selector
	blockQuery  string
	skipClasses []string
	minLength   int
	clock       kb.Clock
}

// New creates an Extractor. Records are stamped with clock.Now().
func New(cfg Config, clock kb.Clock) (*Extractor, error) {
	if len(cfg.BlockTags) == 0 {
		return nil, fmt.Errorf("at least one block tag is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.MinBlockLength < 0 {
		return nil, fmt.Errorf("min block length must be >= 0")
	}
	return &Extractor{
		selectors:   cfg.Selectors,
		blockQuery:  strings.Join(cfg.BlockTags, ", "),
		skipClasses: cfg.SkipClasses,
		minLength:   cfg.MinBlockLength,
		clock:       clock,
	}, nil
}

// Extract parses html and returns a page record, or kb.ErrNoContent when no
// block survives filtering.
func (e *Extractor) Extract(html []byte, url string) (kb.PageRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return kb.PageRecord{}, fmt.Errorf("parse html for %s: %w", url, err)
	}

	container, _ := e.container(doc)
	blocks := e.blocks(container)
	if len(blocks) == 0 {
		return kb.PageRecord{}, fmt.Errorf("%s: %w", url, kb.ErrNoContent)
	}

	return kb.PageRecord{
		URL:       url,
		Title:     strings.TrimSpace(doc.Find("title").First().Text()),
		Blocks:    blocks,
		FetchedAt: e.clock.Now(),
	}, nil
}

// container applies the selectors in priority order and falls back to body.
// The returned name identifies which selector won.
func (e *Extractor) container(doc *goquery.Document) (*goquery.Selection, string) {
	for _, sel := range e.selectors {
		if sel.Match == nil {
			continue
		}
		if found := sel.Match(doc); found != nil && found.Length() > 0 {
			return found, sel.Name
		}
	}
	return doc.Find("body").First(), "body"
}

func (e *Extractor) blocks(container *goquery.Selection) []string {
	var out []string
	container.Find(e.blockQuery).Each(func(_ int, s *goquery.Selection) {
		if e.skipped(s) {
			return
		}
		text := normalizeSpace(s.Text())
		if utf8.RuneCountInString(text) > e.minLength {
			out = append(out, text)
		}
	})
	return out
}

// skipped reports whether the element's class attribute carries one of the
// navigation markers. Matching is a case-sensitive substring test.
func (e *Extractor) skipped(s *goquery.Selection) bool {
	class, ok := s.Attr("class")
	if !ok || class == "" {
		return false
	}
	for _, marker := range e.skipClasses {
		if marker != "" && strings.Contains(class, marker) {
			return true
		}
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
