// Package postgres provides a Postgres-backed corpus store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/campus-kb/internal/kb"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for page rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// CorpusStore keeps the corpus as one row per page. Save replaces every row
// inside a single transaction.
type CorpusStore struct {
	pool  pool
	table string
}

var _ kb.CorpusStore = (*CorpusStore)(nil)

// NewCorpusStore connects to Postgres using the provided config.
func NewCorpusStore(ctx context.Context, cfg Config) (*CorpusStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewCorpusStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewCorpusStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCorpusStoreWithPool(p pool, table string) (*CorpusStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CorpusStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *CorpusStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the pages table when it does not exist.
func (s *CorpusStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	position   INTEGER NOT NULL,
	url        TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	content    JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Save validates pages and replaces the stored corpus. Any failure rolls the
// transaction back so the previous corpus survives.
func (s *CorpusStore) Save(ctx context.Context, pages []kb.PageRecord) (err error) {
	if err := kb.ValidateCorpus(pages); err != nil {
		return fmt.Errorf("save corpus: %w", err)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin corpus tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	if _, err = tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("clear corpus: %w", err)
	}
	insert := fmt.Sprintf(
		"INSERT INTO %s (position, url, title, content, fetched_at) VALUES ($1,$2,$3,$4,$5)",
		s.table,
	)
	for i, page := range pages {
		content, mErr := json.Marshal(page.Blocks)
		if mErr != nil {
			err = fmt.Errorf("marshal content for %s: %w", page.URL, mErr)
			return err
		}
		if _, err = tx.Exec(ctx, insert, i, page.URL, page.Title, content, page.FetchedAt); err != nil {
			return fmt.Errorf("insert page %s: %w", page.URL, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit corpus: %w", err)
	}
	return nil
}

// Load returns the pages in their saved order.
func (s *CorpusStore) Load(ctx context.Context) ([]kb.PageRecord, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		"SELECT url, title, content, fetched_at FROM %s ORDER BY position", s.table,
	))
	if err != nil {
		return nil, fmt.Errorf("%w: query pages: %w", kb.ErrCorpusUnavailable, err)
	}
	defer rows.Close()

	var pages []kb.PageRecord
	for rows.Next() {
		var (
			page    kb.PageRecord
			content []byte
		)
		if err := rows.Scan(&page.URL, &page.Title, &content, &page.FetchedAt); err != nil {
			return nil, fmt.Errorf("%w: scan page: %w", kb.ErrCorpusUnavailable, err)
		}
		if err := json.Unmarshal(content, &page.Blocks); err != nil {
			return nil, fmt.Errorf("%w: decode content for %s: %w", kb.ErrCorpusUnavailable, page.URL, err)
		}
		page.FetchedAt = page.FetchedAt.UTC()
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read pages: %w", kb.ErrCorpusUnavailable, err)
	}
	if err := kb.ValidateCorpus(pages); err != nil {
		return nil, err
	}
	return pages, nil
}
