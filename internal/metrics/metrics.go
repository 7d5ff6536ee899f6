// Package metrics exposes Prometheus collectors for ingestion, indexing, and
// the query service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch attempt outcomes.
const (
	FetchOK      = "ok"
	FetchRetry   = "retry"
	FetchFailed  = "failed"
	PageScraped  = "scraped"
	PageFailed   = "failed"
	PageNoText   = "empty"
	QueryMatched = "matched"
	QueryNoMatch = "no_match"
	QueryInvalid = "invalid"
	QueryError   = "error"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	ingestPagesTotal           *prometheus.CounterVec
	ingestBytesTotal           *prometheus.CounterVec
	queriesTotal               *prometheus.CounterVec
	queryDurationSeconds       prometheus.Histogram
	embeddingFallbacksTotal    prometheus.Counter
	embeddingCacheHitsTotal    *prometheus.CounterVec
	corpusPages                prometheus.Gauge
	indexEntries               prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kb_fetch_attempts_total",
				Help: "Fetch attempts, labeled by site and outcome (ok, retry, failed).",
			},
			[]string{"site", "outcome"},
		)

		ingestPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kb_ingest_pages_total",
				Help: "Pages processed by ingestion runs, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		ingestBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kb_ingest_bytes_total",
				Help: "HTML bytes fetched during ingestion, labeled by site.",
			},
			[]string{"site"},
		)

		queriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kb_queries_total",
				Help: "Chatbot queries, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		queryDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kb_query_duration_seconds",
				Help:    "Retrieval latency per query.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		)

		embeddingFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kb_embedding_fallbacks_total",
				Help: "Queries answered lexical-only because the embedder failed or timed out.",
			},
		)

		embeddingCacheHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kb_embedding_cache_lookups_total",
				Help: "Query embedding cache lookups, labeled by result (hit, miss).",
			},
			[]string{"result"},
		)

		corpusPages = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kb_corpus_pages",
				Help: "Pages in the corpus loaded by this instance.",
			},
		)

		indexEntries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kb_index_entries",
				Help: "Entries in the vector index loaded by this instance.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetchAttempt records one fetch attempt.
func ObserveFetchAttempt(rawURL, outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(SanitizeSite(rawURL), outcome).Inc()
}

// ObservePage records the ingestion outcome for one URL.
func ObservePage(rawURL, status string, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	ingestPagesTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		ingestBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveQuery records a query outcome and its latency.
func ObserveQuery(outcome string, duration time.Duration) {
	Init()
	queriesTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		queryDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveEmbeddingFallback counts a lexical-only degradation.
func ObserveEmbeddingFallback() {
	Init()
	embeddingFallbacksTotal.Inc()
}

// ObserveEmbeddingCache counts a cache lookup.
func ObserveEmbeddingCache(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	embeddingCacheHitsTotal.WithLabelValues(result).Inc()
}

// SetLoaded publishes the sizes of the loaded corpus and index.
func SetLoaded(pages, entries int) {
	Init()
	corpusPages.Set(float64(pages))
	indexEntries.Set(float64(entries))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
