package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS decision_log (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	decision_id     TEXT NOT NULL UNIQUE,
	session_id      TEXT NOT NULL,
	form_id         TEXT NOT NULL,
	user_class      TEXT,
	fallback_used   INTEGER NOT NULL,
	admitted        INTEGER NOT NULL,
	candidates_json TEXT,
	tiers_json      TEXT,
	reason          TEXT,
	total_ms        REAL NOT NULL,
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decision_log_session ON decision_log(session_id, id);
`

// EnsureSchema creates the decision_log table if it does not exist.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate decision_log: %w", err)
	}
	return nil
}
// #endregion schema

// #region log-decision
// LogDecision writes a provenance entry to the decision_log table.
func LogDecision(db *sql.DB, entry DecisionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO decision_log (decision_id, session_id, form_id, user_class, fallback_used, admitted,
		 candidates_json, tiers_json, reason, total_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.DecisionID,
		entry.SessionID,
		entry.FormID,
		nullIfEmpty(entry.UserClass),
		boolToInt(entry.FallbackUsed),
		entry.Admitted,
		nullIfEmpty(entry.CandidatesJSON),
		nullIfEmpty(entry.TiersJSON),
		nullIfEmpty(entry.Reason),
		entry.TotalMs,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}
// #endregion log-decision

// #region recent
// RecentDecisions returns up to limit rows, newest first. An empty sessionID
// matches every session.
func RecentDecisions(db *sql.DB, sessionID string, limit int) ([]DecisionEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT decision_id, session_id, form_id, user_class, fallback_used, admitted,
		candidates_json, tiers_json, reason, total_ms, created_at
		FROM decision_log`
	args := []interface{}{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionEntry
	for rows.Next() {
		var (
			e                               DecisionEntry
			userClass, cands, tiers, reason sql.NullString
			fallback                        int
			createdAt                       string
		)
		if err := rows.Scan(&e.DecisionID, &e.SessionID, &e.FormID, &userClass, &fallback, &e.Admitted,
			&cands, &tiers, &reason, &e.TotalMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.UserClass = userClass.String
		e.CandidatesJSON = cands.String
		e.TiersJSON = tiers.String
		e.Reason = reason.String
		e.FallbackUsed = fallback != 0
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion recent

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
// #endregion helpers
