// Package app builds the long-lived services shared by the CLI commands and
// loads the immutable query runtime.
package app

import (
	"context"
	"fmt"
	"net/http"

	gcs "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-kb/internal/clock/system"
	"github.com/JakeFAU/campus-kb/internal/config"
	"github.com/JakeFAU/campus-kb/internal/corpus"
	"github.com/JakeFAU/campus-kb/internal/embedding"
	"github.com/JakeFAU/campus-kb/internal/hash/sha256"
	"github.com/JakeFAU/campus-kb/internal/index"
	"github.com/JakeFAU/campus-kb/internal/kb"
	memorypublisher "github.com/JakeFAU/campus-kb/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/campus-kb/internal/publisher/pubsub"
	"github.com/JakeFAU/campus-kb/internal/storage"
	gcsstorage "github.com/JakeFAU/campus-kb/internal/storage/gcs"
	localstorage "github.com/JakeFAU/campus-kb/internal/storage/local"
	memorystorage "github.com/JakeFAU/campus-kb/internal/storage/memory"
	pgstore "github.com/JakeFAU/campus-kb/internal/storage/postgres"
)

// Services holds the infrastructure clients built from configuration.
type Services struct {
	cfg    config.Config
	logger *zap.Logger

	Blobs     storage.BlobStore
	Corpus    kb.CorpusStore
	Publisher kb.Publisher

	hasher     *sha256.Hasher
	clock      *system.Clock
	httpClient *http.Client

	gcsClient   *gcs.Client
	pgStore     *pgstore.CorpusStore
	pubsub      *gcppublisher.Publisher
	redisClient *redis.Client
}

// Open connects the storage, corpus and publisher backends named by cfg.
// On error every client opened so far is closed.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *Services, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Services{
		cfg:        cfg,
		logger:     logger,
		hasher:     sha256.New(),
		clock:      system.New(),
		httpClient: &http.Client{Timeout: cfg.EmbeddingTimeout()},
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if err = s.setupStorage(ctx); err != nil {
		return nil, err
	}
	if err = s.setupCorpus(ctx); err != nil {
		return nil, err
	}
	if err = s.setupPublisher(ctx); err != nil {
		return nil, err
	}
	if cfg.Embedding.Cache.RedisAddr != "" {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Embedding.Cache.RedisAddr,
			DB:   cfg.Embedding.Cache.RedisDB,
		})
		logger.Info("using redis query embedding cache", zap.String("addr", cfg.Embedding.Cache.RedisAddr))
	}
	return s, nil
}

// Config returns the configuration the services were opened with.
func (s *Services) Config() config.Config {
	return s.cfg
}

// Logger returns the root logger.
func (s *Services) Logger() *zap.Logger {
	return s.logger
}

func (s *Services) setupStorage(ctx context.Context) error {
	var err error
	switch s.cfg.Storage.Backend {
	case "gcs":
		s.gcsClient, err = gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		s.Blobs, err = gcsstorage.New(s.gcsClient, gcsstorage.Config{
			Bucket: s.cfg.Storage.GCSBucket,
			Prefix: s.cfg.Storage.Prefix,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		s.logger.Info("using GCS storage backend", zap.String("bucket", s.cfg.Storage.GCSBucket))
	case "local":
		s.Blobs, err = localstorage.New(localstorage.Config{BaseDir: s.cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		s.logger.Info("using local storage backend", zap.String("path", s.cfg.Storage.BaseDir))
	default:
		s.logger.Info("using in-memory storage backend")
		s.Blobs = memorystorage.NewBlobStore()
	}
	return nil
}

func (s *Services) setupCorpus(ctx context.Context) error {
	if s.cfg.Corpus.Backend == "postgres" {
		store, err := pgstore.NewCorpusStore(ctx, pgstore.Config{
			DSN:             s.cfg.DB.DSN,
			Table:           s.cfg.DB.Table,
			MaxConns:        s.cfg.DB.MaxConns,
			MaxConnLifetime: s.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres corpus store init failed: %w", err)
		}
		s.pgStore = store
		s.Corpus = store
		s.logger.Info("using postgres corpus backend", zap.String("table", s.cfg.DB.Table))
		return nil
	}
	store, err := corpus.NewBlobCorpusStore(s.Blobs, s.cfg.Corpus.Object)
	if err != nil {
		return fmt.Errorf("corpus store init failed: %w", err)
	}
	s.Corpus = store
	return nil
}

func (s *Services) setupPublisher(ctx context.Context) error {
	if s.cfg.Publish.Topic == "" || s.cfg.Publish.ProjectID == "" {
		s.logger.Debug("no Pub/Sub topic configured, using in-memory publisher")
		s.Publisher = memorypublisher.New()
		return nil
	}
	pub, err := gcppublisher.Dial(ctx, s.cfg.Publish.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	s.pubsub = pub
	s.Publisher = pub
	s.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", s.cfg.Publish.ProjectID),
		zap.String("topic", s.cfg.Publish.Topic),
	)
	return nil
}

// EnsureSchema prepares the relational corpus table when that backend is in
// use. Other backends need no preparation.
func (s *Services) EnsureSchema(ctx context.Context) error {
	if s.pgStore == nil {
		return nil
	}
	return s.pgStore.EnsureSchema(ctx)
}

// Embedder builds the configured embedding provider. Query embedders are
// wrapped with the memory or Redis cache.
func (s *Services) Embedder(forQueries bool) (kb.Embedder, error) {
	if err := s.cfg.RequireEmbeddingToken(); err != nil {
		return nil, err
	}
	inner, err := embedding.New(embedding.Config{
		Provider:   s.cfg.Embedding.Provider,
		Model:      s.cfg.Embedding.Model,
		BaseURL:    s.cfg.Embedding.BaseURL,
		APIToken:   s.cfg.Embedding.APIToken,
		Dimensions: s.cfg.Embedding.Dimensions,
		Timeout:    s.cfg.EmbeddingTimeout(),
	}, s.httpClient)
	if err != nil {
		return nil, fmt.Errorf("embedder init failed: %w", err)
	}
	if !forQueries {
		return inner, nil
	}

	var cache embedding.Cache
	if s.redisClient != nil {
		cache = embedding.NewRedisCache(s.redisClient, s.cfg.Embedding.Cache.TTL)
	} else {
		cache = embedding.NewMemoryCache(s.cfg.Embedding.Cache.MaxEntries, s.cfg.Embedding.Cache.TTL)
	}
	key := func(model, text string) string { return s.hasher.Key(model, text) }
	return embedding.NewCachedEmbedder(inner, cache, key, s.logger), nil
}

// Indexer builds an index.Indexer over the shared blob store.
func (s *Services) Indexer(embedder kb.Embedder) (*index.Indexer, error) {
	ix, err := index.New(index.Config{
		Embedder:  embedder,
		Blobs:     s.Blobs,
		Hasher:    s.hasher,
		Clock:     s.clock,
		Object:    s.cfg.Index.Object,
		BatchSize: s.cfg.Index.BatchSize,
	}, s.logger)
	if err != nil {
		return nil, fmt.Errorf("indexer init failed: %w", err)
	}
	return ix, nil
}

// Close releases every open client.
func (s *Services) Close() {
	if s.pubsub != nil {
		if err := s.pubsub.Close(); err != nil {
			s.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if s.pgStore != nil {
		s.pgStore.Close()
	}
	if s.gcsClient != nil {
		if err := s.gcsClient.Close(); err != nil {
			s.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}
