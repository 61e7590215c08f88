package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
	"github.com/danielpatrickdp/adaptive-form/internal/pipeline"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Start           time.Time               `json:"start"`
	Config          FixtureConfig           `json:"config"`
	Steps           []FixtureStep           `json:"steps"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureStep is one recorded batch.
type FixtureStep struct {
	StepID    string                  `json:"step_id"`
	SessionID string                  `json:"session_id"`
	FormID    string                  `json:"form_id"`
	OffsetMs  int64                   `json:"offset_ms"`
	Context   pipeline.SessionContext `json:"context"`
	Events    []behavior.Event        `json:"events"`
}

// FixtureExpectedResult captures the expected outcome per step. A nil
// Admitted skips the count check.
type FixtureExpectedResult struct {
	StepID       string `json:"step_id"`
	Action       string `json:"action"`
	Admitted     *int   `json:"admitted,omitempty"`
	FallbackUsed *bool  `json:"fallback_used,omitempty"`
}

// FixtureConfig overrides replay defaults. Zero fields keep the default.
type FixtureConfig struct {
	BudgetMs           int    `json:"budget_ms"`
	CooldownMs         int    `json:"cooldown_ms"`
	MaxPerSession      int    `json:"max_per_session"`
	DisableEnhancement bool   `json:"disable_enhancement"`
	OnStateUnavailable string `json:"on_state_unavailable"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToSteps converts the recorded batches to replay steps.
func (f *Fixture) ToSteps() []Step {
	steps := make([]Step, len(f.Steps))
	for i, s := range f.Steps {
		steps[i] = Step{
			StepID:    s.StepID,
			SessionID: s.SessionID,
			FormID:    s.FormID,
			Offset:    time.Duration(s.OffsetMs) * time.Millisecond,
			Context:   s.Context,
			Events:    s.Events,
		}
	}
	return steps
}

// ToReplayConfig applies the fixture overrides to DefaultReplayConfig.
func (f *Fixture) ToReplayConfig() ReplayConfig {
	rc := DefaultReplayConfig()
	if !f.Start.IsZero() {
		rc.Start = f.Start
	}
	fc := f.Config
	if fc.BudgetMs > 0 {
		rc.Pipeline.Budget = time.Duration(fc.BudgetMs) * time.Millisecond
	}
	if fc.CooldownMs > 0 {
		rc.Admission.CooldownPeriod = time.Duration(fc.CooldownMs) * time.Millisecond
	}
	if fc.MaxPerSession > 0 {
		rc.Admission.MaxPerSession = fc.MaxPerSession
		rc.EvalConfig.MaxPerSession = fc.MaxPerSession
	}
	if fc.DisableEnhancement {
		rc.Enhance.Enabled = false
	}
	if fc.OnStateUnavailable != "" {
		rc.Pipeline.OnStateUnavailable = pipeline.StatePolicy(fc.OnStateUnavailable)
	}
	return rc
}

// #endregion fixture-loader

// #region expectations

// Mismatch is a step whose outcome differs from the fixture's expectation.
type Mismatch struct {
	StepID string
	Field  string
	Want   string
	Got    string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: %s want %s, got %s", m.StepID, m.Field, m.Want, m.Got)
}

// Check compares results against the expected outcomes. Steps without an
// expectation are not checked; expectations without a result are reported.
func Check(results []ReplayResult, expected []FixtureExpectedResult) []Mismatch {
	byStep := make(map[string]ReplayResult, len(results))
	for _, r := range results {
		byStep[r.StepID] = r
	}

	var out []Mismatch
	for _, e := range expected {
		r, ok := byStep[e.StepID]
		if !ok {
			out = append(out, Mismatch{StepID: e.StepID, Field: "step", Want: "a result", Got: "none"})
			continue
		}
		if e.Action != "" && string(r.Action) != e.Action {
			out = append(out, Mismatch{StepID: e.StepID, Field: "action", Want: e.Action, Got: string(r.Action)})
		}
		if r.Decision == nil {
			continue
		}
		if e.Admitted != nil && len(r.Decision.Candidates) != *e.Admitted {
			out = append(out, Mismatch{StepID: e.StepID, Field: "admitted",
				Want: fmt.Sprint(*e.Admitted), Got: fmt.Sprint(len(r.Decision.Candidates))})
		}
		if e.FallbackUsed != nil && r.Decision.FallbackUsed != *e.FallbackUsed {
			out = append(out, Mismatch{StepID: e.StepID, Field: "fallback_used",
				Want: fmt.Sprint(*e.FallbackUsed), Got: fmt.Sprint(r.Decision.FallbackUsed)})
		}
	}
	return out
}

// #endregion expectations
