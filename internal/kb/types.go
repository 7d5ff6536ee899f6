package kb

import (
	"time"
)

// NoAnswer is returned as the answer text when nothing in the corpus matches.
const NoAnswer = "I'm sorry, I couldn't find an answer to your question."

// PageRecord is one scraped page admitted to the corpus.
type PageRecord struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Blocks    []string  `json:"content"`
	FetchedAt time.Time `json:"timestamp"`
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Body         []byte
	Attempts     int
	Duration     time.Duration
	UsedHeadless bool
}

// VectorEntry is one embedded page document.
type VectorEntry struct {
	DocumentText string    `json:"document_text"`
	Embedding    []float32 `json:"embedding"`
	SourceURL    string    `json:"source_url"`
}

// VectorIndex holds one entry per corpus page, stamped with the corpus and
// embedding model it was built from.
type VectorIndex struct {
	CorpusStamp string        `json:"corpus_stamp"`
	Model       string        `json:"model"`
	Dimensions  int           `json:"dimensions"`
	BuiltAt     time.Time     `json:"built_at"`
	Entries     []VectorEntry `json:"entries"`
}

// Candidate is a query-time match. VectorScore is nil for lexical matches.
type Candidate struct {
	Text         string
	SourceURL    string
	LexicalScore int
	VectorScore  *float64
	Order        int
}

// ContactInfo is a structured contact entry surfaced alongside an answer.
type ContactInfo struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
}

// Result is the outcome of one retrieval.
type Result struct {
	Answer      string        `json:"answer"`
	Sources     []string      `json:"sources"`
	ContactInfo []ContactInfo `json:"contact_info"`
	Matched     bool          `json:"-"`
}

// NoMatch builds the sentinel result returned when nothing matched.
func NoMatch() Result {
	return Result{
		Answer:      NoAnswer,
		Sources:     []string{},
		ContactInfo: []ContactInfo{},
	}
}

// RebuildEvent is published after a corpus or index rebuild.
type RebuildEvent struct {
	RunID       string    `json:"run_id"`
	Kind        string    `json:"kind"`
	CorpusStamp string    `json:"corpus_stamp"`
	Pages       int       `json:"pages"`
	Failed      int       `json:"failed"`
	Model       string    `json:"model,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Rebuild event kinds.
const (
	RebuildCorpus = "corpus.rebuilt"
	RebuildIndex  = "index.rebuilt"
)

// Attributes are the message attributes subscribers can filter on.
func (e RebuildEvent) Attributes() map[string]string {
	return map[string]string{
		"kind":         e.Kind,
		"run_id":       e.RunID,
		"corpus_stamp": e.CorpusStamp,
	}
}
