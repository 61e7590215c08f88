package replay

import (
	"context"
	"sync"
	"time"

	"github.com/danielpatrickdp/adaptive-form/internal/admission"
	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
	"github.com/danielpatrickdp/adaptive-form/internal/enhance"
	"github.com/danielpatrickdp/adaptive-form/internal/eval"
	"github.com/danielpatrickdp/adaptive-form/internal/pipeline"
	"github.com/danielpatrickdp/adaptive-form/internal/session"
)

// #region types
// Step is one recorded batch, replayed at Start+Offset on the fake clock.
type Step struct {
	StepID    string
	SessionID string
	FormID    string
	Offset    time.Duration
	Context   pipeline.SessionContext
	Events    []behavior.Event
}

// ReplayConfig bundles the pipeline, admission, enhancement and eval
// configs for a replay run.
type ReplayConfig struct {
	Start      time.Time
	Pipeline   pipeline.Config
	Admission  admission.Config
	Enhance    enhance.Config
	EvalConfig eval.EvalConfig
}

// DefaultReplayConfig returns the production defaults for every stage.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		Start:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Pipeline:   pipeline.DefaultConfig(),
		Admission:  admission.DefaultConfig(),
		Enhance:    enhance.DefaultConfig(),
		EvalConfig: eval.DefaultEvalConfig(),
	}
}

// Action is the replay-level outcome of a step: an admission outcome or
// "error".
type Action string

const ActionError Action = "error"

// ReplayResult captures the outcome of replaying one step through the full pipeline.
type ReplayResult struct {
	StepID    string
	SessionID string
	Action    Action
	Reason    string
	Decision  *pipeline.Decision // nil on error
	Eval      *eval.EvalResult   // nil on error
	Err       error
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalSteps     int `json:"total_steps"`
	Decisions      int `json:"decisions"`
	Admitted       int `json:"admitted"`
	FallbackUsed   int `json:"fallback_used"`
	CooldownBlocks int `json:"cooldown_blocks"`
	CapBlocks      int `json:"cap_blocks"`
	Exhausted      int `json:"exhausted"`
	AuditFailures  int `json:"audit_failures"`
	Errors         int `json:"errors"`
}

// #endregion types

// #region clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// #endregion clock

// #region replay
// Replay runs the steps in order through a fresh orchestrator backed by an
// in-memory session store, then audits every decision. Deterministic apart
// from decision IDs and timings.
func Replay(ctx context.Context, steps []Step, config ReplayConfig) []ReplayResult {
	clock := &fakeClock{now: config.Start}
	store := session.NewMemoryStore()
	orch := pipeline.New(config.Pipeline, pipeline.Deps{
		Enhancer:  enhance.New(config.Enhance),
		Admission: admission.New(config.Admission),
		Store:     store,
		Clock:     clock.Now,
	})
	evalInst := eval.NewEvalHarness(config.EvalConfig)

	issued := make(map[string]int)
	results := make([]ReplayResult, 0, len(steps))

	for _, step := range steps {
		clock.set(config.Start.Add(step.Offset))

		d, err := orch.Decide(ctx, step.SessionID, step.FormID, step.Events, step.Context)
		if err != nil {
			results = append(results, ReplayResult{
				StepID:    step.StepID,
				SessionID: step.SessionID,
				Action:    ActionError,
				Reason:    err.Error(),
				Err:       err,
			})
			continue
		}

		audit := evalInst.Run(d, issued[step.SessionID])
		issued[step.SessionID] += len(d.Candidates)

		results = append(results, ReplayResult{
			StepID:    step.StepID,
			SessionID: step.SessionID,
			Action:    Action(d.Admission),
			Reason:    d.AdmissionReason,
			Decision:  &d,
			Eval:      &audit,
		})
	}

	return results
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{TotalSteps: len(results)}
	for _, r := range results {
		if r.Err != nil {
			s.Errors++
			continue
		}
		s.Decisions++
		s.Admitted += len(r.Decision.Candidates)
		if r.Decision.FallbackUsed {
			s.FallbackUsed++
		}
		if r.Eval != nil && !r.Eval.Passed {
			s.AuditFailures++
		}
		switch admission.Outcome(r.Action) {
		case admission.OutcomeCooldown:
			s.CooldownBlocks++
		case admission.OutcomeCapped:
			s.CapBlocks++
		case admission.OutcomeExhausted:
			s.Exhausted++
		}
	}
	return s
}

// #endregion replay
