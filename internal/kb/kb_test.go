package kb_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/campus-kb/internal/hash/sha256"
	"github.com/JakeFAU/campus-kb/internal/kb"
)

func samplePages() []kb.PageRecord {
	return []kb.PageRecord{
		{
			URL:       "https://x/about",
			Title:     "About <JSOM>",
			Blocks:    []string{"UTD offers a Master of Science in Business Analytics.", "Contact admissions at admit@utd.edu."},
			FetchedAt: time.Date(2024, 11, 20, 10, 15, 30, 123456000, time.UTC),
		},
	}
}

func TestEncodeDecodeCorpusRoundTrip(t *testing.T) {
	t.Parallel()

	pages := samplePages()
	data, err := kb.EncodeCorpus(pages)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content"`)
	assert.Contains(t, string(data), "<JSOM>", "html characters must not be escaped")

	got, err := kb.DecodeCorpus(data)
	require.NoError(t, err)
	require.Equal(t, pages, got)
}

func TestDecodeCorpusAcceptsZonelessTimestamps(t *testing.T) {
	t.Parallel()

	raw := `[{"url":"https://x/a","title":"A","content":["a block of sufficient length"],"timestamp":"2024-11-20T10:15:30.123456"}]`
	pages, err := kb.DecodeCorpus([]byte(raw))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, time.Date(2024, 11, 20, 10, 15, 30, 123456000, time.UTC), pages[0].FetchedAt)
}

func TestDecodeCorpusRejectsInvalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"malformed":  `{not json`,
		"empty":      `[]`,
		"no content": `[{"url":"https://x/a","title":"","content":[],"timestamp":""}]`,
		"duplicate":  `[{"url":"https://x/a","content":["x"]},{"url":"https://x/a","content":["y"]}]`,
		"no url":     `[{"url":"","content":["x"]}]`,
		"bad time":   `[{"url":"https://x/a","content":["x"],"timestamp":"yesterday"}]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := kb.DecodeCorpus([]byte(raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, kb.ErrCorpusUnavailable)
		})
	}
}

func TestStampTracksContent(t *testing.T) {
	t.Parallel()

	h := sha256.New()
	pages := samplePages()
	first, err := kb.Stamp(h, pages)
	require.NoError(t, err)
	again, err := kb.Stamp(h, samplePages())
	require.NoError(t, err)
	assert.Equal(t, first, again)

	pages[0].Blocks = append(pages[0].Blocks, "another block of text here")
	changed, err := kb.Stamp(h, pages)
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestDocumentTextAppendsSource(t *testing.T) {
	t.Parallel()

	text := kb.DocumentText(kb.PageRecord{URL: "https://x/a", Blocks: []string{"one", "two"}})
	assert.Equal(t, "one two\nSource: https://x/a", text)
}

func TestFetchErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := error(&kb.FetchError{URL: "https://x", Attempts: 6, Err: cause})
	assert.ErrorIs(t, err, kb.ErrNetwork)
	assert.ErrorIs(t, err, cause)

	var fe *kb.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 6, fe.Attempts)

	status := &kb.FetchError{URL: "https://x", StatusCode: 404, Attempts: 1}
	assert.ErrorIs(t, status, kb.ErrNetwork)
	assert.Contains(t, status.Error(), "status 404")
}

func TestNoMatchHasEmptySlices(t *testing.T) {
	t.Parallel()

	res := kb.NoMatch()
	assert.Equal(t, kb.NoAnswer, res.Answer)
	assert.NotNil(t, res.Sources)
	assert.Empty(t, res.Sources)
	assert.NotNil(t, res.ContactInfo)
	assert.False(t, res.Matched)
}
