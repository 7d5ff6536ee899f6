// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultUserAgent mimics a desktop browser so trivial bot filters let the
// ingestion fetcher through.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Embedding provider names.
const (
	ProviderHuggingFace = "huggingface"
	ProviderOpenAI      = "openai"
	ProviderHash        = "hash"
)

// legacyTokenEnv is the token variable read by earlier deployments.
const legacyTokenEnv = "HUGGINGFACE_API_TOKEN"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Corpus    CorpusConfig    `mapstructure:"corpus"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	Index     IndexConfig     `mapstructure:"index"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Synth     SynthConfig     `mapstructure:"synth"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int  `mapstructure:"port"`
	RequestTimeoutSeconds int  `mapstructure:"request_timeout_seconds"`
	StrictStatus          bool `mapstructure:"strict_status"`
}

// IngestConfig governs the sequential scrape pass.
type IngestConfig struct {
	URLs             []string       `mapstructure:"urls"`
	UserAgent        string         `mapstructure:"user_agent"`
	AcceptLanguage   string         `mapstructure:"accept_language"`
	DelaySeconds     float64        `mapstructure:"delay_seconds"`
	TimeoutSeconds   int            `mapstructure:"timeout_seconds"`
	MaxRetries       int            `mapstructure:"max_retries"`
	BackoffInitialMs int            `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int            `mapstructure:"backoff_max_ms"`
	RetryStatuses    []int          `mapstructure:"retry_statuses"`
	Headless         HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures the chromedp fallback for script-rendered pages.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	MinTextRunes  int  `mapstructure:"min_text_runes"`
}

// ExtractConfig holds the extraction rules. Selectors are tried in order.
type ExtractConfig struct {
	Selectors      []string `mapstructure:"selectors"`
	BlockTags      []string `mapstructure:"block_tags"`
	SkipClasses    []string `mapstructure:"skip_classes"`
	MinBlockLength int      `mapstructure:"min_block_length"`
}

// CorpusConfig selects where the corpus lives.
type CorpusConfig struct {
	Backend string `mapstructure:"backend"`
	Object  string `mapstructure:"object"`
}

// StorageConfig selects the blob backend shared by corpus and index artifacts.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational corpus backend.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// IndexConfig controls vector index persistence.
type IndexConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Object    string `mapstructure:"object"`
	BatchSize int    `mapstructure:"batch_size"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider       string      `mapstructure:"provider"`
	Model          string      `mapstructure:"model"`
	BaseURL        string      `mapstructure:"base_url"`
	APIToken       string      `mapstructure:"api_token"`
	Dimensions     int         `mapstructure:"dimensions"`
	TimeoutSeconds int         `mapstructure:"timeout_seconds"`
	Cache          CacheConfig `mapstructure:"cache"`
}

// CacheConfig configures the query embedding cache.
type CacheConfig struct {
	MaxEntries int           `mapstructure:"max_entries"`
	RedisAddr  string        `mapstructure:"redis_addr"`
	RedisDB    int           `mapstructure:"redis_db"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// RetrievalConfig tunes query-time ranking.
type RetrievalConfig struct {
	TopK                 int     `mapstructure:"top_k"`
	MaxQueryChars        int     `mapstructure:"max_query_chars"`
	MinVectorScore       float64 `mapstructure:"min_vector_score"`
	QueryEmbedTimeoutMs  int     `mapstructure:"query_embed_timeout_ms"`
	VectorCandidateLimit int     `mapstructure:"vector_candidate_limit"`
}

// SynthConfig configures the optional answer synthesizer.
type SynthConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	APIToken       string  `mapstructure:"api_token"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// PublishConfig holds metadata for rebuild notifications.
type PublishConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Embedding.APIToken == "" {
		cfg.Embedding.APIToken = os.Getenv(legacyTokenEnv)
	}
	if cfg.Synth.APIToken == "" {
		cfg.Synth.APIToken = cfg.Embedding.APIToken
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout_seconds", 10)
	v.SetDefault("server.strict_status", false)
	v.SetDefault("ingest.urls", DefaultURLs)
	v.SetDefault("ingest.user_agent", DefaultUserAgent)
	v.SetDefault("ingest.accept_language", "en-US,en;q=0.5")
	v.SetDefault("ingest.delay_seconds", 2)
	v.SetDefault("ingest.timeout_seconds", 60)
	v.SetDefault("ingest.max_retries", 5)
	v.SetDefault("ingest.backoff_initial_ms", 2000)
	v.SetDefault("ingest.backoff_max_ms", 120000)
	v.SetDefault("ingest.retry_statuses", []int{500, 502, 503, 504, 599})
	v.SetDefault("ingest.headless.enabled", false)
	v.SetDefault("ingest.headless.nav_timeout_seconds", 45)
	v.SetDefault("ingest.headless.min_text_runes", 200)
	v.SetDefault("extract.selectors", DefaultSelectors)
	v.SetDefault("extract.block_tags", []string{"p", "h1", "h2", "h3", "h4", "li", "div.text", "table"})
	v.SetDefault("extract.skip_classes", []string{"nav", "footer", "menu", "sidebar"})
	v.SetDefault("extract.min_block_length", 20)
	v.SetDefault("corpus.backend", "blob")
	v.SetDefault("corpus.object", "utd_data.json")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "pages")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("index.enabled", true)
	v.SetDefault("index.object", "vector_index.json")
	v.SetDefault("index.batch_size", 32)
	v.SetDefault("embedding.provider", ProviderHuggingFace)
	v.SetDefault("embedding.model", "sentence-transformers/all-MiniLM-L6-v2")
	v.SetDefault("embedding.base_url", "https://api-inference.huggingface.co")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.timeout_seconds", 30)
	v.SetDefault("embedding.api_token", "")
	v.SetDefault("embedding.cache.max_entries", 1024)
	v.SetDefault("embedding.cache.redis_addr", "")
	v.SetDefault("embedding.cache.redis_db", 0)
	v.SetDefault("embedding.cache.ttl", "24h")
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.max_query_chars", 1024)
	v.SetDefault("retrieval.min_vector_score", 0.35)
	v.SetDefault("retrieval.query_embed_timeout_ms", 2000)
	v.SetDefault("retrieval.vector_candidate_limit", 3)
	v.SetDefault("synth.enabled", false)
	v.SetDefault("synth.base_url", "https://api.openai.com/v1")
	v.SetDefault("synth.model", "gpt-4o-mini")
	v.SetDefault("synth.api_token", "")
	v.SetDefault("synth.temperature", 0.2)
	v.SetDefault("synth.timeout_seconds", 8)
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.topic", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Ingest.DelaySeconds < 0 {
		return fmt.Errorf("ingest.delay_seconds must be >= 0")
	}
	if c.Ingest.TimeoutSeconds <= 0 {
		return fmt.Errorf("ingest.timeout_seconds must be > 0")
	}
	if c.Ingest.MaxRetries < 0 {
		return fmt.Errorf("ingest.max_retries must be >= 0")
	}
	if c.Extract.MinBlockLength < 0 {
		return fmt.Errorf("extract.min_block_length must be >= 0")
	}
	if len(c.Extract.BlockTags) == 0 {
		return fmt.Errorf("extract.block_tags must not be empty")
	}
	switch c.Corpus.Backend {
	case "blob":
		if c.Corpus.Object == "" {
			return fmt.Errorf("corpus.object must be set for the blob backend")
		}
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown corpus.backend %q", c.Corpus.Backend)
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0")
	}
	if c.Retrieval.MaxQueryChars <= 0 {
		return fmt.Errorf("retrieval.max_query_chars must be > 0")
	}
	if c.Retrieval.MinVectorScore < -1 || c.Retrieval.MinVectorScore > 1 {
		return fmt.Errorf("retrieval.min_vector_score must be within [-1, 1]")
	}
	if c.Retrieval.QueryEmbedTimeoutMs <= 0 {
		return fmt.Errorf("retrieval.query_embed_timeout_ms must be > 0")
	}
	if c.QueryEmbedTimeout() >= c.RequestTimeout() {
		return fmt.Errorf("retrieval.query_embed_timeout_ms must be below server.request_timeout_seconds")
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be > 0")
	}
	if c.Synth.Enabled && c.Synth.Model == "" {
		return fmt.Errorf("synth.model must be set when synth is enabled")
	}
	return nil
}

// RequireEmbeddingToken reports the missing-secret startup error for remote
// embedding providers. The hash provider runs offline and needs no token.
func (c Config) RequireEmbeddingToken() error {
	switch c.Embedding.Provider {
	case ProviderHash:
		return nil
	case ProviderHuggingFace, ProviderOpenAI:
		if strings.TrimSpace(c.Embedding.APIToken) == "" {
			return fmt.Errorf("embedding.api_token (KB_EMBEDDING_API_TOKEN or %s) is required for provider %q",
				legacyTokenEnv, c.Embedding.Provider)
		}
		return nil
	default:
		return fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider)
	}
}

// FetchTimeout converts the ingest timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Ingest.TimeoutSeconds) * time.Second
}

// FetchDelay converts the politeness delay into a duration.
func (c Config) FetchDelay() time.Duration {
	return time.Duration(c.Ingest.DelaySeconds * float64(time.Second))
}

// RequestTimeout is the service-level deadline applied to each query.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// QueryEmbedTimeout bounds the per-query embedding call.
func (c Config) QueryEmbedTimeout() time.Duration {
	return time.Duration(c.Retrieval.QueryEmbedTimeoutMs) * time.Millisecond
}

// EmbeddingTimeout bounds one embedding provider HTTP call.
func (c Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutSeconds) * time.Second
}

// SynthTimeout bounds one synthesizer call.
func (c Config) SynthTimeout() time.Duration {
	return time.Duration(c.Synth.TimeoutSeconds) * time.Second
}

// HeadlessTimeout bounds one headless navigation.
func (c Config) HeadlessTimeout() time.Duration {
	return time.Duration(c.Ingest.Headless.NavTimeoutSec) * time.Second
}

// Backoff returns the initial and maximum retry delays.
func (c Config) Backoff() (time.Duration, time.Duration) {
	return time.Duration(c.Ingest.BackoffInitialMs) * time.Millisecond,
		time.Duration(c.Ingest.BackoffMaxMs) * time.Millisecond
}
