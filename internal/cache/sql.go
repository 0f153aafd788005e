package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DefaultSQLitePath is used when the sqlite DSN is empty.
const DefaultSQLitePath = "aiia-cache.db"

// SQLStore persists cache rows to SQLite or Postgres. stored_at holds Unix
// milliseconds so both dialects compare it as a plain integer.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLiteStore opens (creating if needed) a SQLite cache database.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache store: %w", err)
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s := &SQLStore{db: db, dialect: "sqlite"}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore opens a Postgres cache database.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres cache store: %w", err)
	}
	s := &SQLStore{db: db, dialect: "postgres"}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s cache store: %w", s.dialect, err)
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS prompt_cache (
	prompt_hash TEXT PRIMARY KEY,
	response TEXT NOT NULL,
	stored_at INTEGER NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_prompt_cache_stored_at ON prompt_cache(stored_at);`,
	}
	if s.dialect == "postgres" {
		ddl[0] = `CREATE TABLE IF NOT EXISTS prompt_cache (
	prompt_hash TEXT PRIMARY KEY,
	response TEXT NOT NULL,
	stored_at BIGINT NOT NULL
);`
	}

	for _, stmt := range ddl {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("initialize cache schema: %w", err)
		}
	}
	return nil
}

// Dialect returns "sqlite" or "postgres".
func (s *SQLStore) Dialect() string { return s.dialect }

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Get returns the row for hash.
func (s *SQLStore) Get(ctx context.Context, hash string) (Row, bool, error) {
	var (
		row      Row
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT prompt_hash, response, stored_at FROM prompt_cache WHERE prompt_hash = ?`),
		hash,
	).Scan(&row.Hash, &row.Response, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("get cache row: %w", err)
	}
	row.StoredAt = time.UnixMilli(storedAt).UTC()
	return row, true, nil
}

// Put inserts or replaces the row keyed by row.Hash.
func (s *SQLStore) Put(ctx context.Context, row Row) error {
	if row.StoredAt.IsZero() {
		row.StoredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO prompt_cache(prompt_hash, response, stored_at)
	VALUES(?, ?, ?)
	ON CONFLICT(prompt_hash) DO UPDATE SET response = excluded.response, stored_at = excluded.stored_at`),
		row.Hash, row.Response, row.StoredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put cache row: %w", err)
	}
	return nil
}

// Delete removes the row for hash.
func (s *SQLStore) Delete(ctx context.Context, hash string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM prompt_cache WHERE prompt_hash = ?`), hash); err != nil {
		return fmt.Errorf("delete cache row: %w", err)
	}
	return nil
}

// DeleteBefore removes every row stored strictly before cutoff.
func (s *SQLStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM prompt_cache WHERE stored_at < ?`), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired cache rows: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Len returns the number of rows.
func (s *SQLStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prompt_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache rows: %w", err)
	}
	return n, nil
}

// Clear removes all rows.
func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM prompt_cache`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Open builds a Store for backend "memory", "sqlite" or "postgres".
func Open(backend, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "memory":
		return NewMemory(0), nil
	case "", "sqlite":
		return NewSQLiteStore(dsn)
	case "postgres", "postgresql":
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
