package pipeline

// #region imports
import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/admission"
	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
	"github.com/danielpatrickdp/adaptive-form/internal/conflict"
	"github.com/danielpatrickdp/adaptive-form/internal/edge"
	"github.com/danielpatrickdp/adaptive-form/internal/enhance"
	"github.com/danielpatrickdp/adaptive-form/internal/features"
	"github.com/danielpatrickdp/adaptive-form/internal/scoring"
)

// #endregion

// #region errors

var (
	// ErrTierTimeout marks a tier that exceeded its time box. Recovered locally.
	ErrTierTimeout = errors.New("tier timeout")
	// ErrTierFailure marks a tier that errored or panicked. Recovered locally.
	ErrTierFailure = errors.New("tier failure")
	// ErrSessionStateUnavailable is the only error Decide returns: the
	// session store could not be read or written.
	ErrSessionStateUnavailable = errors.New("session state unavailable")
)

// #endregion

// #region tier-status

// TierStatus is the per-tier outcome reported on every decision.
type TierStatus string

const (
	StatusOK      TierStatus = "ok"
	StatusFailed  TierStatus = "failed"
	StatusTimeout TierStatus = "timeout"
	StatusSkipped TierStatus = "skipped"
	StatusUnused  TierStatus = "unused"
)

// #endregion

// #region stage

// Stage is a state of the per-invocation state machine.
type Stage string

const (
	StageStart              Stage = "start"
	StageEdgeRunning        Stage = "edge_running"
	StageFallbackRunning    Stage = "fallback_running"
	StageEnhancementRunning Stage = "enhancement_running"
	StageEnhancementSkipped Stage = "skipped"
	StageResolving          Stage = "resolving"
	StageAdmitting          Stage = "admitting"
	StageDone               Stage = "done"
)

// #endregion

// #region state-policy

// StatePolicy selects what Decide does when session state is unavailable.
type StatePolicy string

const (
	// StatePolicyFail returns ErrSessionStateUnavailable.
	StatePolicyFail StatePolicy = "fail"
	// StatePolicyDegrade decides without rate limiting and does not write state.
	StatePolicyDegrade StatePolicy = "degrade"
)

// #endregion

// #region config

// Config holds orchestrator tuning.
type Config struct {
	Budget             time.Duration // total pipeline budget; bounds the enhancement time box
	EdgeTimeout        time.Duration // safety net around the edge tier
	EnhancementRate    float64       // enhancement attempts per second, 0 = unlimited
	EnhancementBurst   int
	BatchParallelism   int // max sessions decided concurrently by DecideBatch
	OnStateUnavailable StatePolicy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Budget:             500 * time.Millisecond,
		EdgeTimeout:        50 * time.Millisecond,
		EnhancementRate:    0,
		EnhancementBurst:   1,
		BatchParallelism:   8,
		OnStateUnavailable: StatePolicyFail,
	}
}

// #endregion

// #region collaborators

// SessionContext is what the capability/context provider knows about the
// executing client.
type SessionContext struct {
	Device               behavior.DeviceHint `json:"device"`
	Profile              adaptation.Profile  `json:"profile"`
	EnhancementPermitted bool                `json:"enhancement_permitted"`
}

// ContextProvider resolves a SessionContext for a session.
type ContextProvider interface {
	Resolve(ctx context.Context, sessionID, formID string) (SessionContext, error)
}

// EdgeTier is the fast first-pass scorer.
type EdgeTier interface {
	Classify(ctx context.Context, v features.Vector) (edge.Result, error)
}

// EnhancementTier is the optional refinement pass.
type EnhancementTier interface {
	Capable(c enhance.Capability) bool
	Enhance(ctx context.Context, v features.Vector, edgeCandidates []adaptation.Candidate) ([]adaptation.Candidate, error)
}

// FallbackEngine is the rule table used when the edge tier fails.
type FallbackEngine interface {
	Evaluate(events []behavior.Event) []adaptation.Candidate
}

// Recorder receives every finished decision for telemetry, plus session
// store failures, which may end a call without a decision.
type Recorder interface {
	ObserveDecision(d Decision)
	ObserveStateFailure(op StateOp)
}

// StateOp names the session store operation that failed.
type StateOp string

const (
	StateOpLoad StateOp = "load"
	StateOpSave StateOp = "save"
)

type nopRecorder struct{}

func (nopRecorder) ObserveDecision(Decision) {}
func (nopRecorder) ObserveStateFailure(StateOp) {}

// #endregion

// #region decision

// Timings are wall-clock stage durations in milliseconds.
type Timings struct {
	EdgeMs        float64 `json:"edge_ms"`
	EnhancementMs float64 `json:"enhancement_ms"`
	TotalMs       float64 `json:"total_ms"`
}

// Decision is the immutable result of one Decide call.
type Decision struct {
	ID              string                         `json:"id"`
	SessionID       string                         `json:"session_id"`
	FormID          string                         `json:"form_id"`
	UserClass       scoring.UserClass              `json:"user_class,omitempty"`
	ClassConfidence float64                        `json:"class_confidence,omitempty"`
	Profile         adaptation.Profile             `json:"profile"`
	Features        map[string]float64             `json:"features"`
	Candidates      []adaptation.Candidate         `json:"candidates"`
	Timings         Timings                        `json:"timings"`
	FallbackUsed    bool                           `json:"fallback_used"`
	Tiers           map[adaptation.Tier]TierStatus `json:"tiers"`
	Stages          []Stage                        `json:"stages"`
	Suppressed      []conflict.Suppression         `json:"suppressed,omitempty"`
	Rejected        []admission.Rejection          `json:"rejected,omitempty"`
	Admission       admission.Outcome              `json:"admission"`
	AdmissionReason string                         `json:"admission_reason"`
	Degraded        []string                       `json:"degraded,omitempty"`
	DecidedAt       time.Time                      `json:"decided_at"`
}

// Request is one DecideBatch entry.
type Request struct {
	SessionID string
	FormID    string
	Events    []behavior.Event
	Context   SessionContext
}

// Result pairs a batch request's decision with its error.
type Result struct {
	Decision Decision
	Err      error
}

// #endregion
