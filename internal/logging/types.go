package logging

import "time"

// #region decision-entry
// DecisionEntry is a single row in the decision_log table.
type DecisionEntry struct {
	DecisionID     string
	SessionID      string
	FormID         string
	UserClass      string
	FallbackUsed   bool
	Admitted       int
	CandidatesJSON string // admitted candidates as emitted to the UI layer
	TiersJSON      string // per-tier status map
	Reason         string
	TotalMs        float64
	CreatedAt      time.Time
}
// #endregion decision-entry
