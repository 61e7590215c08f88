package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load for a session with no stored state.
var ErrNotFound = errors.New("session state not found")

// #region state
// State is the per-session admission bookkeeping. Only the admission
// controller produces new values; stores persist them verbatim.
type State struct {
	SessionID     string    `json:"session_id"`
	LastDecision  time.Time `json:"last_decision"`
	IssuedCount   int       `json:"issued_count"`
	CooldownUntil time.Time `json:"cooldown_until"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Fresh returns the zero state for a session that has never been decided.
func Fresh(sessionID string) State {
	return State{SessionID: sessionID}
}

// InCooldown reports whether now falls before CooldownUntil.
func (s State) InCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}
// #endregion state

// #region store
// Store loads and persists session state, keyed by session ID.
type Store interface {
	// Load returns ErrNotFound (possibly wrapped) for unknown sessions.
	Load(ctx context.Context, sessionID string) (State, error)
	Save(ctx context.Context, st State) error
	// Sweep deletes sessions not updated since idleBefore and returns how many.
	Sweep(ctx context.Context, idleBefore time.Time) (int, error)
}
// #endregion store
