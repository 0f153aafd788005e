// Package requestlog persists one row per dispatched completion so operators
// can see which model answered, how, and how long it took. Cache hits never
// reach a backend and are not logged.
package requestlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Outcome values.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Entry is one completion log event.
type Entry struct {
	ID           int64     `json:"id"`
	TraceID      string    `json:"traceId,omitempty"`
	Outcome      string    `json:"outcome"`
	Model        string    `json:"model,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	Mode         string    `json:"mode,omitempty"`
	LatencyMs    int64     `json:"latencyMs"`
	Simulated    bool      `json:"simulated"`
	Degraded     bool      `json:"degraded"`
	ErrorMessage string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Query filters List. Zero values match everything.
type Query struct {
	Limit   int
	Offset  int
	Outcome string
	Model   string
}

// Page is a window of entries plus the total matching count.
type Page struct {
	Total int     `json:"total"`
	Data  []Entry `json:"data"`
}

// Writer persists completion log entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// NoopWriter ignores all log writes.
type NoopWriter struct{}

func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

// SQLWriter persists entries to SQLite/Postgres.
type SQLWriter struct {
	db      *sql.DB
	dialect string
}

// DefaultSQLitePath is used when the sqlite DSN is empty.
const DefaultSQLitePath = "aiia-completions.db"

func NewSQLiteWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite completion log: %w", err)
	}
	db.SetMaxOpenConns(1)
	w := &SQLWriter{db: db, dialect: "sqlite"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres completion log: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "postgres"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// Open builds a writer for backend "sqlite" or "postgres". An empty backend
// disables logging and returns a NoopWriter.
func Open(backend, dsn string) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "none":
		return NoopWriter{}, nil
	case "sqlite":
		return NewSQLiteWriter(dsn)
	case "postgres", "postgresql":
		return NewPostgresWriter(dsn)
	default:
		return nil, fmt.Errorf("unknown completion log backend %q", backend)
	}
}

func (w *SQLWriter) init() error {
	if err := w.db.Ping(); err != nil {
		return fmt.Errorf("ping %s completion log: %w", w.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS completion_logs (
	id INTEGER PRIMARY KEY,
	trace_id TEXT,
	outcome TEXT NOT NULL,
	model TEXT,
	provider TEXT,
	mode TEXT,
	latency_ms INTEGER NOT NULL,
	simulated BOOLEAN NOT NULL,
	degraded BOOLEAN NOT NULL,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL
);`

	if w.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS completion_logs (
	id BIGSERIAL PRIMARY KEY,
	trace_id TEXT,
	outcome TEXT NOT NULL,
	model TEXT,
	provider TEXT,
	mode TEXT,
	latency_ms BIGINT NOT NULL,
	simulated BOOLEAN NOT NULL,
	degraded BOOLEAN NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize completion log schema: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (w *SQLWriter) rebind(query string) string {
	if w.dialect != "postgres" {
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

func (w *SQLWriter) Write(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := w.rebind(`INSERT INTO completion_logs(trace_id, outcome, model, provider, mode, latency_ms, simulated, degraded, error_message, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := w.db.ExecContext(ctx, query,
		entry.TraceID,
		entry.Outcome,
		entry.Model,
		entry.Provider,
		entry.Mode,
		entry.LatencyMs,
		entry.Simulated,
		entry.Degraded,
		entry.ErrorMessage,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("write completion log: %w", err)
	}
	return nil
}

func (q Query) where() (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if q.Outcome != "" {
		conds = append(conds, "outcome = ?")
		args = append(args, q.Outcome)
	}
	if q.Model != "" {
		conds = append(conds, "model = ?")
		args = append(args, q.Model)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns entries newest first.
func (w *SQLWriter) List(ctx context.Context, q Query) (Page, error) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	where, args := q.where()

	var page Page
	if err := w.db.QueryRowContext(ctx, w.rebind("SELECT COUNT(*) FROM completion_logs"+where), args...).Scan(&page.Total); err != nil {
		return Page{}, fmt.Errorf("count completion logs: %w", err)
	}

	rows, err := w.db.QueryContext(ctx, w.rebind(`SELECT id, trace_id, outcome, model, provider, mode, latency_ms, simulated, degraded, error_message, created_at
	FROM completion_logs`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`), append(args, q.Limit, q.Offset)...)
	if err != nil {
		return Page{}, fmt.Errorf("list completion logs: %w", err)
	}
	defer rows.Close()

	page.Data = []Entry{}
	for rows.Next() {
		var (
			e                                    Entry
			traceID, model, provider, mode, errM sql.NullString
		)
		if err := rows.Scan(&e.ID, &traceID, &e.Outcome, &model, &provider, &mode, &e.LatencyMs,
			&e.Simulated, &e.Degraded, &errM, &e.CreatedAt); err != nil {
			return Page{}, fmt.Errorf("scan completion log: %w", err)
		}
		e.TraceID, e.Model, e.Provider, e.Mode, e.ErrorMessage = traceID.String, model.String, provider.String, mode.String, errM.String
		page.Data = append(page.Data, e)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("list completion logs: %w", err)
	}
	return page, nil
}

// DeleteBefore removes entries created before cutoff.
func (w *SQLWriter) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := w.db.ExecContext(ctx, w.rebind("DELETE FROM completion_logs WHERE created_at < ?"), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete completion logs: %w", err)
	}
	return res.RowsAffected()
}

func (w *SQLWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}
