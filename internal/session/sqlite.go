package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS session_state (
	session_id      TEXT PRIMARY KEY,
	last_decision   INTEGER NOT NULL DEFAULT 0,
	issued_count    INTEGER NOT NULL DEFAULT 0,
	cooldown_until  INTEGER NOT NULL DEFAULT 0,
	updated_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_state_updated ON session_state(updated_at);
`
// #endregion schema

// #region store-struct
// SQLiteStore persists session state in SQLite. Timestamps are stored as
// unix milliseconds so that sweeps compare numerically.
type SQLiteStore struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewSQLiteStore opens a SQLite database and runs migrations. The pragmas
// ride on the DSN so every pooled connection waits on a locked database
// instead of failing with SQLITE_BUSY.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// DSN appends the per-connection pragmas to a database path.
func DSN(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}
// #endregion constructor

// #region load
// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (State, error) {
	var lastMs, cooldownMs, updatedMs int64
	st := State{SessionID: sessionID}
	err := s.db.QueryRowContext(ctx,
		`SELECT last_decision, issued_count, cooldown_until, updated_at
		 FROM session_state WHERE session_id = ?`, sessionID,
	).Scan(&lastMs, &st.IssuedCount, &cooldownMs, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, fmt.Errorf("load %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return State{}, fmt.Errorf("load %s: %w", sessionID, err)
	}
	st.LastDecision = fromMillis(lastMs)
	st.CooldownUntil = fromMillis(cooldownMs)
	st.UpdatedAt = fromMillis(updatedMs)
	return st, nil
}
// #endregion load

// #region save
// Save implements Store with an upsert.
func (s *SQLiteStore) Save(ctx context.Context, st State) error {
	if st.SessionID == "" {
		return fmt.Errorf("save: empty session id")
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_state (session_id, last_decision, issued_count, cooldown_until, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			last_decision = excluded.last_decision,
			issued_count = excluded.issued_count,
			cooldown_until = excluded.cooldown_until,
			updated_at = excluded.updated_at`,
		st.SessionID, toMillis(st.LastDecision), st.IssuedCount, toMillis(st.CooldownUntil), toMillis(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", st.SessionID, err)
	}
	return nil
}
// #endregion save

// #region sweep
// Sweep implements Store.
func (s *SQLiteStore) Sweep(ctx context.Context, idleBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_state WHERE updated_at < ?`, toMillis(idleBefore))
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows: %w", err)
	}
	return int(n), nil
}

// List returns the most recently updated sessions.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]State, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, last_decision, issued_count, cooldown_until, updated_at
		 FROM session_state ORDER BY updated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []State
	for rows.Next() {
		var st State
		var lastMs, cooldownMs, updatedMs int64
		if err := rows.Scan(&st.SessionID, &lastMs, &st.IssuedCount, &cooldownMs, &updatedMs); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		st.LastDecision = fromMillis(lastMs)
		st.CooldownUntil = fromMillis(cooldownMs)
		st.UpdatedAt = fromMillis(updatedMs)
		out = append(out, st)
	}
	return out, rows.Err()
}
// #endregion sweep

// #region time-encoding
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
// #endregion time-encoding
