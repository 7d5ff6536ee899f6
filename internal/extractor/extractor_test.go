package extractor

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/campus-kb/internal/config"
	"github.com/JakeFAU/campus-kb/internal/kb"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, 11, 20, 10, 0, 0, 0, time.UTC)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(Config{
		Selectors:      CSSSelectors(config.DefaultSelectors),
		BlockTags:      []string{"p", "h1", "h2", "h3", "h4", "li", "div.text", "table"},
		SkipClasses:    []string{"nav", "footer", "menu", "sidebar"},
		MinBlockLength: 20,
	}, fixedClock{now: testNow})
	require.NoError(t, err)
	return e
}

const programPage = `<html><head><title> MS Business Analytics </title></head>
<body>
  <ul class="main-nav"><li>Home page link that is long enough</li></ul>
  <div class="content-wrapper">
    <h1>Master of Science in Business Analytics</h1>
    <p>Short</p>
    <p>The program   prepares students
       for data-driven careers.</p>
    <ul>
      <li class="menu-item">Menu entry that should be skipped entirely</li>
      <li>Core courses include statistics and machine learning.</li>
    </ul>
    <div class="text">Applications are reviewed on a rolling basis.</div>
  </div>
  <footer><p class="footer-note">Copyright notice for the whole university site</p></footer>
</body></html>`

func TestExtractUsesFirstMatchingContainer(t *testing.T) {
	t.Parallel()

	page, err := newTestExtractor(t).Extract([]byte(programPage), "https://x/msba")
	require.NoError(t, err)

	assert.Equal(t, "https://x/msba", page.URL)
	assert.Equal(t, "MS Business Analytics", page.Title)
	assert.Equal(t, testNow, page.FetchedAt)
	assert.Equal(t, []string{
		"Master of Science in Business Analytics",
		"The program prepares students for data-driven careers.",
		"Core courses include statistics and machine learning.",
		"Applications are reviewed on a rolling basis.",
	}, page.Blocks)
}

func TestExtractFallsBackToBody(t *testing.T) {
	t.Parallel()

	html := `<html><body>
	  <p>Body level paragraph with enough characters.</p>
	  <div class="sidebar-box"><p>nested paragraph is still collected here</p></div>
	  <p class="sidebar">Sidebar paragraph that must be dropped.</p>
	</body></html>`
	page, err := newTestExtractor(t).Extract([]byte(html), "https://x/plain")
	require.NoError(t, err)
	assert.Equal(t, "", page.Title)
	assert.Equal(t, []string{
		"Body level paragraph with enough characters.",
		"nested paragraph is still collected here",
	}, page.Blocks)
}

func TestExtractRejectsEmptyPages(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Empty</title></head><body><main><p>Home</p><p>Skip to content</p></main></body></html>`
	_, err := newTestExtractor(t).Extract([]byte(html), "https://x/empty")
	require.Error(t, err)
	assert.ErrorIs(t, err, kb.ErrNoContent)
}

func TestExtractLengthThresholdIsExclusive(t *testing.T) {
	t.Parallel()

	exact := strings.Repeat("a", 20)
	longer := strings.Repeat("b", 21)
	html := "<main><p>" + exact + "</p><p>" + longer + "</p></main>"
	page, err := newTestExtractor(t).Extract([]byte(html), "https://x/len")
	require.NoError(t, err)
	assert.Equal(t, []string{longer}, page.Blocks)
}

func TestExtractCountsRunesNotBytes(t *testing.T) {
	t.Parallel()

	// 11 runes, 22 bytes: below the threshold despite its byte length.
	accented := strings.Repeat("é", 11)
	html := "<main><p>" + accented + "</p><p>Ünïcödé text that is comfortably long</p></main>"
	page, err := newTestExtractor(t).Extract([]byte(html), "https://x/utf8")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ünïcödé text that is comfortably long"}, page.Blocks)
}

func TestSelectorsAreTriedInOrder(t *testing.T) {
	t.Parallel()

	html := `<html><body>
	  <main><p>Main element paragraph with text.</p></main>
	  <article><p>Article element paragraph with text.</p></article>
	</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	e := newTestExtractor(t)
	_, name := e.container(doc)
	assert.Equal(t, "article", name, "article precedes main in the default order")

	page, err := e.Extract([]byte(html), "https://x/order")
	require.NoError(t, err)
	assert.Equal(t, []string{"Article element paragraph with text."}, page.Blocks)
}

func TestEachDefaultSelectorMatchesIndependently(t *testing.T) {
	t.Parallel()

	fixtures := map[string]string{
		"div.content-wrapper": `<div class="content-wrapper"></div>`,
		"div.content":         `<div class="content"></div>`,
		"div#content":         `<div id="content"></div>`,
		"div.main-content":    `<div class="main-content"></div>`,
		"div#main-content":    `<div id="main-content"></div>`,
		"article":             `<article></article>`,
		"main":                `<main></main>`,
		"div.catalog-content": `<div class="catalog-content"></div>`,
		"div.program-content": `<div class="program-content"></div>`,
	}
	for _, sel := range CSSSelectors(config.DefaultSelectors) {
		fixture, ok := fixtures[sel.Name]
		require.True(t, ok, "missing fixture for %s", sel.Name)
		doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body>" + fixture + "</body></html>"))
		require.NoError(t, err)
		assert.Equal(t, 1, sel.Match(doc).Length(), sel.Name)

		empty, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body><section></section></body></html>"))
		require.NoError(t, err)
		assert.Equal(t, 0, sel.Match(empty).Length(), sel.Name)
	}
}

func TestCSSSelectorsSkipsBlanks(t *testing.T) {
	t.Parallel()

	sels := CSSSelectors([]string{" main ", "", "article"})
	require.Len(t, sels, 2)
	assert.Equal(t, "main", sels[0].Name)
	assert.Equal(t, "article", sels[1].Name)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, fixedClock{})
	assert.Error(t, err)
	_, err = New(Config{BlockTags: []string{"p"}}, nil)
	assert.Error(t, err)
	_, err = New(Config{BlockTags: []string{"p"}, MinBlockLength: -1}, fixedClock{})
	assert.Error(t, err)
}
