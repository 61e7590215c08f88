package fallback

import (
	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
)

// #region rule

// Predicate reports whether a rule fires for the session's events.
type Predicate func(events []behavior.Event) bool

// Builder produces the candidate of a firing rule.
type Builder func(events []behavior.Event) adaptation.Candidate

// Rule is one independent condition -> candidate entry. Rules never see each
// other's output; Priority only orders the emitted candidates.
type Rule struct {
	Name     string
	Priority int
	When     Predicate
	Build    Builder
}

// #endregion rule

// #region spec

// RuleSet is the YAML document shape of a rule table.
type RuleSet struct {
	Rules []RuleSpec `yaml:"rules"`
}

// RuleSpec declares a rule in YAML. All conditions are AND-ed; a spec with no
// conditions always fires.
type RuleSpec struct {
	Name     string     `yaml:"name"`
	Priority int        `yaml:"priority"`
	When     Conditions `yaml:"when"`
	Emit     Emit       `yaml:"emit"`
}

// Conditions are thresholds over simple event counts. Zero values are ignored,
// except MaxEvents which is a pointer so that "no events" can be expressed.
type Conditions struct {
	MinEvents           int                 `yaml:"min_events,omitempty"`
	MaxEvents           *int                `yaml:"max_events,omitempty"`
	MinCorrections      int                 `yaml:"min_corrections,omitempty"`
	MinValidationErrors int                 `yaml:"min_validation_errors,omitempty"`
	MinIdleGapMs        int64               `yaml:"min_idle_gap_ms,omitempty"`
	MinFieldsTouched    int                 `yaml:"min_fields_touched,omitempty"`
	MinScrollEvents     int                 `yaml:"min_scroll_events,omitempty"`
	Device              behavior.DeviceHint `yaml:"device,omitempty"`
}

// Emit describes the candidate a firing rule produces.
type Emit struct {
	Type       adaptation.Type   `yaml:"type"`
	Confidence float64           `yaml:"confidence"`
	Parameters map[string]string `yaml:"parameters,omitempty"`
}

// #endregion spec

// #region summary

// summary holds the counts Conditions are evaluated against.
type summary struct {
	events           int
	corrections      int
	validationErrors int
	scrolls          int
	fieldsTouched    int
	maxGapMs         int64
	device           behavior.DeviceHint
}

// #endregion summary
