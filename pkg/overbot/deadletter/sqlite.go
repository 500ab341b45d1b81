package deadletter

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// SQLiteStore persists failures to a SQLite database in WAL mode.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens or creates the failure table at path. Use ":memory:"
// for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS delivery_failures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			event_kind TEXT NOT NULL,
			origin TEXT NOT NULL,
			correlation_id TEXT NOT NULL,
			sink TEXT NOT NULL,
			error TEXT NOT NULL,
			failed_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_delivery_failures_sink
		ON delivery_failures(sink, failed_at)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Record implements Store.
func (s *SQLiteStore) Record(ctx context.Context, f Failure) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if f.FailedAt.IsZero() {
		f.FailedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_failures
			(event_id, event_kind, origin, correlation_id, sink, error, failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.EventID, string(f.EventKind), f.Origin, f.CorrelationID, f.Sink, f.Error, f.FailedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// List implements Store. A non-positive limit returns everything.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Failure, error) {
	return s.query(ctx, `
		SELECT event_id, event_kind, origin, correlation_id, sink, error, failed_at
		FROM delivery_failures
		ORDER BY failed_at DESC, id DESC
		LIMIT ?
	`, sqlLimit(limit))
}

// ListBySink implements Store.
func (s *SQLiteStore) ListBySink(ctx context.Context, sink string, limit int) ([]Failure, error) {
	return s.query(ctx, `
		SELECT event_id, event_kind, origin, correlation_id, sink, error, failed_at
		FROM delivery_failures
		WHERE sink = ?
		ORDER BY failed_at DESC, id DESC
		LIMIT ?
	`, sink, sqlLimit(limit))
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Failure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	out := []Failure{}
	for rows.Next() {
		var f Failure
		var kind string
		var failedAt int64
		if err := rows.Scan(&f.EventID, &kind, &f.Origin, &f.CorrelationID, &f.Sink, &f.Error, &failedAt); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.EventKind = event.Kind(kind)
		f.FailedAt = time.Unix(0, failedAt).UTC()
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return out, nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_failures`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}

// CountBySink implements Store.
func (s *SQLiteStore) CountBySink(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT sink, COUNT(*) FROM delivery_failures GROUP BY sink`)
	if err != nil {
		return nil, fmt.Errorf("count failures: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sink string
		var n int
		if err := rows.Scan(&sink, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[sink] = n
	}
	return counts, rows.Err()
}

// Purge implements Store.
func (s *SQLiteStore) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM delivery_failures WHERE failed_at < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge failures: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge failures: %w", err)
	}
	return int(n), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
