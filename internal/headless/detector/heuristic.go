// Package detector decides when a fetched page needs a headless re-render
// before extraction.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/campus-kb/internal/kb"
)

const defaultMinTextRunes = 200

// appShellSelectors match the mount points of client-rendered pages.
var appShellSelectors = "#__next, #root, #app, [data-reactroot], [ng-app]"

// Heuristic flags script-rendered shells: pages whose static HTML carries
// little visible text but a client-side app mount point or mostly script.
type Heuristic struct {
	MinTextRunes int
}

// NewHeuristic creates a detector. A page with fewer than minTextRunes of
// visible body text is a promotion candidate.
func NewHeuristic(minTextRunes int) *Heuristic {
	if minTextRunes <= 0 {
		minTextRunes = defaultMinTextRunes
	}
	return &Heuristic{MinTextRunes: minTextRunes}
}

// ShouldPromote reports whether resp looks like a script-rendered shell.
func (h *Heuristic) ShouldPromote(resp kb.FetchResponse) bool {
	if resp.UsedHeadless || resp.StatusCode != http.StatusOK {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return false
	}

	scripts := doc.Find("script")
	scriptBytes := 0
	scripts.Each(func(_ int, s *goquery.Selection) {
		scriptBytes += len(s.Text())
	})
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	visible := len([]rune(strings.Join(strings.Fields(body.Text()), " ")))

	if visible >= h.MinTextRunes {
		return false
	}
	if doc.Find(appShellSelectors).Length() > 0 {
		return true
	}
	return scriptBytes*100/len(resp.Body) >= 25
}
