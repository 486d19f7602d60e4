package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"inputsentry/internal/verdict"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Record is one persisted verdict.
type Record struct {
	ID      string          `json:"id"`
	Session string          `json:"session"`
	Verdict verdict.Verdict `json:"verdict"`
}

// Summary aggregates the stored history.
type Summary struct {
	Total         int
	Suspicious    int
	BySeverity    map[string]int
	MaxConfidence float64
	First         time.Time
	Last          time.Time
}

// Store represents the SQLite verdict history.
type Store struct {
	db     *sql.DB
	closed atomic.Bool

	mu      sync.RWMutex
	session string
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection. Later calls on the store return
// ErrClosed.
func (s *Store) Close() error {
	if s.db == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) isClosed() bool {
	return s.db == nil || s.closed.Load()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// SetSession sets the session id attached to verdicts written by Report.
func (s *Store) SetSession(session string) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
}

// Session returns the current session id.
func (s *Store) Session() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Report implements engine.Reporter by persisting v under the current session.
func (s *Store) Report(ctx context.Context, v verdict.Verdict) error {
	_, err := s.Insert(ctx, s.Session(), v)
	return err
}

// Insert persists v and returns its row id.
func (s *Store) Insert(ctx context.Context, session string, v verdict.Verdict) (string, error) {
	if s.isClosed() {
		return "", ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	st := v.Stats
	_, err = tx.ExecContext(ctx, `
		INSERT INTO verdicts (id, session, timestamp_ms, suspicious, confidence, severity,
			total_events, keyboard_events, mouse_events, focus_events, unique_targets,
			time_span, events_per_second, fired)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, session, v.Timestamp.UnixMilli(), v.Suspicious, v.Confidence, v.Severity().String(),
		st.TotalEvents, st.KeyboardEvents, st.MouseEvents, st.FocusEvents, st.UniqueTargets,
		st.TimeSpan, st.EventsPerSecond, strings.Join(v.Fired, ","),
	)
	if err != nil {
		return "", fmt.Errorf("insert verdict: %w", err)
	}

	if len(v.Reasons) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO verdict_reasons (verdict_id, ordinal, reason)
			VALUES (?, ?, ?)`)
		if err != nil {
			return "", fmt.Errorf("prepare reasons: %w", err)
		}
		defer stmt.Close()

		for i, reason := range v.Reasons {
			if _, err := stmt.ExecContext(ctx, id, i, reason); err != nil {
				return "", fmt.Errorf("insert reason %d: %w", i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit verdict: %w", err)
	}
	return id, nil
}

// Recent returns up to n verdicts, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session, timestamp_ms, suspicious, confidence,
			total_events, keyboard_events, mouse_events, focus_events, unique_targets,
			time_span, events_per_second, fired
		FROM verdicts
		ORDER BY timestamp_ms DESC, rowid DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r     Record
			ts    int64
			fired string
		)
		st := &r.Verdict.Stats
		if err := rows.Scan(&r.ID, &r.Session, &ts, &r.Verdict.Suspicious, &r.Verdict.Confidence,
			&st.TotalEvents, &st.KeyboardEvents, &st.MouseEvents, &st.FocusEvents, &st.UniqueTargets,
			&st.TimeSpan, &st.EventsPerSecond, &fired); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		r.Verdict.Timestamp = time.UnixMilli(ts)
		if fired != "" {
			r.Verdict.Fired = strings.Split(fired, ",")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}

	for i := range records {
		reasons, err := s.reasons(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Verdict.Reasons = reasons
	}
	return records, nil
}

func (s *Store) reasons(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT reason FROM verdict_reasons WHERE verdict_id = ? ORDER BY ordinal", id)
	if err != nil {
		return nil, fmt.Errorf("query reasons: %w", err)
	}
	defer rows.Close()

	var reasons []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan reason: %w", err)
		}
		reasons = append(reasons, r)
	}
	return reasons, rows.Err()
}

// Summary aggregates all stored verdicts.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	sum := Summary{BySeverity: make(map[string]int)}
	if s.isClosed() {
		return sum, ErrClosed
	}

	var (
		first, last sql.NullInt64
		maxConf     sql.NullFloat64
		suspicious  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(suspicious), MAX(confidence), MIN(timestamp_ms), MAX(timestamp_ms)
		FROM verdicts`).Scan(&sum.Total, &suspicious, &maxConf, &first, &last)
	if err != nil {
		return sum, fmt.Errorf("summarize verdicts: %w", err)
	}
	sum.Suspicious = int(suspicious.Int64)
	sum.MaxConfidence = maxConf.Float64
	if first.Valid {
		sum.First = time.UnixMilli(first.Int64)
	}
	if last.Valid {
		sum.Last = time.UnixMilli(last.Int64)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT severity, COUNT(*) FROM verdicts GROUP BY severity")
	if err != nil {
		return sum, fmt.Errorf("query severities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sev string
			n   int
		)
		if err := rows.Scan(&sev, &n); err != nil {
			return sum, fmt.Errorf("scan severity: %w", err)
		}
		sum.BySeverity[sev] = n
	}
	return sum, rows.Err()
}

// Prune deletes verdicts older than before and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM verdicts WHERE timestamp_ms < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune verdicts: %w", err)
	}
	return res.RowsAffected()
}
