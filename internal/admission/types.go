package admission

import (
	"time"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/session"
)

// #region config
// Config holds admission limits.
type Config struct {
	CooldownPeriod time.Duration
	MaxPerSession  int
	Budgets        map[adaptation.Profile]adaptation.Cost
	HighErrorRate  float64 // error rate at which the error bonus applies
	ErrorBonus     float64 // multiplier bonus for error_prevention / input_assistance
	MobileBonus    float64 // multiplier bonus for context_switching / progressive_disclosure
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CooldownPeriod: 30 * time.Second,
		MaxPerSession:  6,
		Budgets:        DefaultBudgets(),
		HighErrorRate:  0.2,
		ErrorBonus:     0.2,
		MobileBonus:    0.15,
	}
}

// DefaultBudgets is the per-profile resource budget table.
func DefaultBudgets() map[adaptation.Profile]adaptation.Cost {
	return map[adaptation.Profile]adaptation.Cost{
		adaptation.ProfileLow:    {Compute: 4, Memory: 3, Animation: 2},
		adaptation.ProfileMedium: {Compute: 8, Memory: 6, Animation: 6},
		adaptation.ProfileHigh:   {Compute: 14, Memory: 10, Animation: 12},
	}
}
// #endregion config

// #region request
// Request is one admission round for a session.
type Request struct {
	Candidates []adaptation.Candidate // conflict-free
	State      session.State
	Profile    adaptation.Profile
	Now        time.Time
	ErrorRate  float64
	Mobile     bool
	// Unlimited skips cooldown and the per-session cap and leaves State
	// untouched. Used when session state could not be loaded.
	Unlimited bool
}
// #endregion request

// #region outcome
// Outcome summarizes an admission round.
type Outcome string

const (
	OutcomeAdmitted  Outcome = "admitted"
	OutcomeExhausted Outcome = "exhausted" // valid result with nothing admitted
	OutcomeCooldown  Outcome = "cooldown"
	OutcomeCapped    Outcome = "session_cap"
)

// RejectReason explains why a single candidate was not admitted.
type RejectReason string

const (
	RejectCooldown RejectReason = "cooldown"
	RejectCap      RejectReason = "session_cap"
	RejectBudget   RejectReason = "over_budget"
)

// Rejection records a candidate that was not admitted.
type Rejection struct {
	ID     string          `json:"id"`
	Type   adaptation.Type `json:"type"`
	Reason RejectReason    `json:"reason"`
	Detail string          `json:"detail,omitempty"`
}

// Result is the admission controller's output. State is the session state
// the caller must persist when StateChanged is true.
type Result struct {
	Admitted     []adaptation.Candidate
	Rejected     []Rejection
	Outcome      Outcome
	Reason       string
	Budget       adaptation.Cost
	Spent        adaptation.Cost
	State        session.State
	StateChanged bool
}
// #endregion outcome
