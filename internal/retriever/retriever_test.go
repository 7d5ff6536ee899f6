package retriever

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/campus-kb/internal/kb"
)

func aboutPage() []kb.PageRecord {
	return []kb.PageRecord{{
		URL:   "https://x/about",
		Title: "About",
		Blocks: []string{
			"UTD offers a Master of Science in Business Analytics.",
			"Contact admissions at admit@utd.edu.",
		},
	}}
}

func newRetriever(t *testing.T, pages []kb.PageRecord, cfg Config) *Retriever {
	t.Helper()
	r, err := New(pages, cfg, nil)
	require.NoError(t, err)
	return r
}

func TestEndToEndExample(t *testing.T) {
	t.Parallel()

	r := newRetriever(t, aboutPage(), Config{})
	ctx := context.Background()

	res, err := r.Retrieve(ctx, "business analytics program")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Contains(t, res.Answer, "UTD offers a Master of Science in Business Analytics.")
	assert.Equal(t, []string{"https://x/about"}, res.Sources)

	res, err = r.Retrieve(ctx, "quantum physics")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, "I'm sorry, I couldn't find an answer to your question.", res.Answer)
	assert.Equal(t, []string{}, res.Sources)
	assert.Equal(t, []kb.ContactInfo{}, res.ContactInfo)
}

func TestEmptyQueryIsSentinel(t *testing.T) {
	t.Parallel()

	r := newRetriever(t, aboutPage(), Config{})
	for _, q := range []string{"", "   \t\n"} {
		res, err := r.Retrieve(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, kb.NoMatch(), res)
	}
}

func TestSubstringMatching(t *testing.T) {
	t.Parallel()

	r := newRetriever(t, aboutPage(), Config{})
	// "admit" occurs inside "admissions" and "admit@utd.edu".
	res, err := r.Retrieve(context.Background(), "ADMIT")
	require.NoError(t, err)
	assert.Equal(t, "Contact admissions at admit@utd.edu.", res.Answer)
	assert.Equal(t, []kb.ContactInfo{{Email: "admit@utd.edu"}}, res.ContactInfo)
}

func TestRankingPrefersMoreTokens(t *testing.T) {
	t.Parallel()

	pages := []kb.PageRecord{
		{URL: "https://kb.test/one", Blocks: []string{"tuition deadlines are posted each term"}},
		{URL: "https://kb.test/two", Blocks: []string{"graduate tuition and fee deadlines for the spring"}},
	}
	r := newRetriever(t, pages, Config{})

	res, err := r.Retrieve(context.Background(), "graduate tuition spring")
	require.NoError(t, err)
	parts := strings.Split(res.Answer, "\n\n")
	require.Len(t, parts, 2)
	assert.Equal(t, pages[1].Blocks[0], parts[0], "3-token block must outrank 1-token block despite order")
	assert.Equal(t, []string{"https://kb.test/two", "https://kb.test/one"}, res.Sources)
}

func TestTiesKeepDiscoveryOrder(t *testing.T) {
	t.Parallel()

	pages := []kb.PageRecord{
		{URL: "https://kb.test/a", Blocks: []string{"advising office first", "advising office second"}},
		{URL: "https://kb.test/b", Blocks: []string{"advising office third", "advising office fourth"}},
	}
	r := newRetriever(t, pages, Config{})

	res, err := r.Retrieve(context.Background(), "advising")
	require.NoError(t, err)
	assert.Equal(t, "advising office first\n\nadvising office second\n\nadvising office third", res.Answer)
}

func TestDuplicateTokensDoNotInflate(t *testing.T) {
	t.Parallel()

	pages := []kb.PageRecord{
		{URL: "https://kb.test/a", Blocks: []string{"career services center"}},
		{URL: "https://kb.test/b", Blocks: []string{"career fair in the student union"}},
	}
	r := newRetriever(t, pages, Config{})

	res, err := r.Retrieve(context.Background(), "career career career fair")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Answer, "career fair in the student union"))
	assert.Equal(t, []string{"career", "fair"}, Tokenize("career career CAREER fair", 1024))
}

func TestSourcesDeduplicated(t *testing.T) {
	t.Parallel()

	pages := []kb.PageRecord{
		{URL: "https://kb.test/a", Blocks: []string{"scholarship info one", "scholarship info two"}},
		{URL: "https://kb.test/b", Blocks: []string{"scholarship info three", "scholarship info four"}},
	}
	r := newRetriever(t, pages, Config{})

	res, err := r.Retrieve(context.Background(), "scholarship")
	require.NoError(t, err)
	assert.Len(t, strings.Split(res.Answer, "\n\n"), 3)
	assert.Equal(t, []string{"https://kb.test/a", "https://kb.test/b"}, res.Sources)
}

func TestTruncationEquivalence(t *testing.T) {
	t.Parallel()

	pages := []kb.PageRecord{
		{URL: "https://kb.test/a", Blocks: []string{"business analytics cohort program"}},
		{URL: "https://kb.test/b", Blocks: []string{"computer science department"}},
	}
	r := newRetriever(t, pages, Config{})

	long := strings.Repeat("q", 1019) + " busi" + " computer science" + strings.Repeat(" filler", 200)
	require.Greater(t, len(long), 2000)
	long = long[:2000]

	full, err := r.Retrieve(context.Background(), long)
	require.NoError(t, err)
	truncated, err := r.Retrieve(context.Background(), long[:1024])
	require.NoError(t, err)
	assert.Equal(t, truncated, full)
	assert.Equal(t, []string{"https://kb.test/a"}, full.Sources, "tokens past 1024 chars must be ignored")
}

func TestTruncationCountsRunes(t *testing.T) {
	t.Parallel()

	query := strings.Repeat("é", 1023) + " zz"
	tokens := Tokenize(query, 1024)
	require.Len(t, tokens, 1)
	assert.Equal(t, 1023, len([]rune(tokens[0])))
}

func TestIdempotentAndConcurrent(t *testing.T) {
	t.Parallel()

	r := newRetriever(t, aboutPage(), Config{})
	want, err := r.Retrieve(context.Background(), "science admissions")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Retrieve(context.Background(), "science admissions")
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	r := newRetriever(t, aboutPage(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Retrieve(ctx, "business")
	assert.ErrorIs(t, err, context.Canceled)
}

// stubEmbedder maps any query to a fixed vector, or fails.
type stubEmbedder struct {
	vec   []float32
	err   error
	block bool
}

func (s stubEmbedder) Model() string { return "stub" }

func (s stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func vectorPages() ([]kb.PageRecord, *kb.VectorIndex) {
	pages := []kb.PageRecord{
		{URL: "https://kb.test/housing", Blocks: []string{"On-campus residence halls and apartments."}},
		{URL: "https://kb.test/parking", Blocks: []string{"Permits are required in all lots."}},
		{URL: "https://kb.test/dining", Blocks: []string{"Meal plans cover the dining hall.", "Dining hours vary."}},
	}
	idx := &kb.VectorIndex{
		Model:      "stub",
		Dimensions: 2,
		Entries: []kb.VectorEntry{
			{SourceURL: pages[0].URL, Embedding: []float32{1, 0}},
			{SourceURL: pages[1].URL, Embedding: []float32{0, 1}},
			{SourceURL: pages[2].URL, Embedding: []float32{0.8, 0.6}},
		},
	}
	return pages, idx
}

func TestVectorHitsWidenRecall(t *testing.T) {
	t.Parallel()

	pages, idx := vectorPages()
	r := newRetriever(t, pages, Config{Index: idx, Embedder: stubEmbedder{vec: []float32{1, 0}}})
	require.True(t, r.VectorEnabled())

	res, err := r.Retrieve(context.Background(), "where do students live")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	// housing (1.0) then dining (0.8); parking (0.0) is below threshold.
	assert.Equal(t, "On-campus residence halls and apartments.\n\nMeal plans cover the dining hall.", res.Answer)
	assert.Equal(t, []string{"https://kb.test/housing", "https://kb.test/dining"}, res.Sources)
}

func TestVectorHitsFollowLexicalAndSkipPresentBlocks(t *testing.T) {
	t.Parallel()

	pages, idx := vectorPages()
	r := newRetriever(t, pages, Config{Index: idx, Embedder: stubEmbedder{vec: []float32{0.8, 0.6}}})

	res, err := r.Retrieve(context.Background(), "meal")
	require.NoError(t, err)
	parts := strings.Split(res.Answer, "\n\n")
	require.Len(t, parts, 3)
	assert.Equal(t, "Meal plans cover the dining hall.", parts[0])
	// dining is the best vector hit, but its first block is already present.
	assert.Equal(t, "Dining hours vary.", parts[1])
	assert.Equal(t, "On-campus residence halls and apartments.", parts[2])
}

func TestEmbedderFailureDegradesToLexical(t *testing.T) {
	t.Parallel()

	pages, idx := vectorPages()
	lexicalOnly := newRetriever(t, pages, Config{})
	want, err := lexicalOnly.Retrieve(context.Background(), "permits")
	require.NoError(t, err)

	for name, emb := range map[string]stubEmbedder{
		"error":   {err: errors.New("503 model loading")},
		"timeout": {block: true},
		"shape":   {vec: []float32{1, 0, 0}},
	} {
		t.Run(name, func(t *testing.T) {
			r := newRetriever(t, pages, Config{
				Index:             idx,
				Embedder:          emb,
				QueryEmbedTimeout: 20 * time.Millisecond,
			})
			got, err := r.Retrieve(context.Background(), "permits")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestNewRejectsMismatchedIndex(t *testing.T) {
	t.Parallel()

	pages, idx := vectorPages()
	_, err := New(pages[:2], Config{Index: idx}, nil)
	assert.ErrorIs(t, err, kb.ErrIndexVersionMismatch)

	_, err = New(nil, Config{}, nil)
	assert.ErrorIs(t, err, kb.ErrCorpusUnavailable)
}

type stubSynth struct {
	answer string
	err    error
	got    []string
}

func (s *stubSynth) Synthesize(_ context.Context, _ string, passages []string) (string, error) {
	s.got = passages
	return s.answer, s.err
}

func TestSynthesizerReplacesAnswer(t *testing.T) {
	t.Parallel()

	synth := &stubSynth{answer: "UTD has an MS in Business Analytics."}
	r := newRetriever(t, aboutPage(), Config{Synthesizer: synth})

	res, err := r.Retrieve(context.Background(), "business analytics")
	require.NoError(t, err)
	assert.Equal(t, "UTD has an MS in Business Analytics.", res.Answer)
	assert.Equal(t, []string{"https://x/about"}, res.Sources)
	require.Len(t, synth.got, 1)
	assert.Contains(t, synth.got[0], "Source: https://x/about")
}

func TestSynthesizerFailureKeepsPassages(t *testing.T) {
	t.Parallel()

	r := newRetriever(t, aboutPage(), Config{Synthesizer: &stubSynth{err: errors.New("rate limited")}})
	res, err := r.Retrieve(context.Background(), "business analytics")
	require.NoError(t, err)
	assert.Equal(t, "UTD offers a Master of Science in Business Analytics.", res.Answer)
}

func TestSlowEmbedderWithinRequestDeadlineDegrades(t *testing.T) {
	t.Parallel()

	pages, idx := vectorPages()
	r := newRetriever(t, pages, Config{
		Index:             idx,
		Embedder:          stubEmbedder{block: true},
		QueryEmbedTimeout: time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	res, err := r.Retrieve(ctx, "dining hours")
	require.NoError(t, err, "the embed budget is cut to fit the request deadline")
	assert.True(t, res.Matched)
	assert.Equal(t, []string{"https://kb.test/dining"}, res.Sources)
}
