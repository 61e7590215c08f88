package adaptation

import (
	"fmt"
	"sort"
)

// #region type

// Type is the adaptation taxonomy the UI layer knows how to render.
type Type string

const (
	FieldReordering       Type = "field_reordering"
	ProgressiveDisclosure Type = "progressive_disclosure"
	ContextSwitching      Type = "context_switching"
	ErrorPrevention       Type = "error_prevention"
	SmartDefaults         Type = "smart_defaults"
	VisualEmphasis        Type = "visual_emphasis"
	InputAssistance       Type = "input_assistance"
)

// AllTypes lists the taxonomy in canonical order.
var AllTypes = []Type{
	FieldReordering,
	ProgressiveDisclosure,
	ContextSwitching,
	ErrorPrevention,
	SmartDefaults,
	VisualEmphasis,
	InputAssistance,
}

// Valid reports whether t is part of the taxonomy.
func (t Type) Valid() bool {
	_, ok := typeGroup[t]
	return ok
}

// #endregion

// #region tier

// Tier identifies which pipeline stage produced a candidate.
type Tier string

const (
	TierEdge        Tier = "edge"
	TierEnhancement Tier = "enhancement"
	TierFallback    Tier = "fallback"
)

// tierRank breaks exact ties deterministically: richer tiers first.
var tierRank = map[Tier]int{
	TierEnhancement: 0,
	TierEdge:        1,
	TierFallback:    2,
}

// #endregion

// #region cost

// Cost is the estimated client-side resource cost of applying an adaptation.
// Units are abstract and compared against a resource profile budget.
type Cost struct {
	Compute   float64 `json:"compute" yaml:"compute" mapstructure:"compute"`
	Memory    float64 `json:"memory" yaml:"memory" mapstructure:"memory"`
	Animation float64 `json:"animation" yaml:"animation" mapstructure:"animation"`
}

// Add returns the component-wise sum.
func (c Cost) Add(o Cost) Cost {
	return Cost{
		Compute:   c.Compute + o.Compute,
		Memory:    c.Memory + o.Memory,
		Animation: c.Animation + o.Animation,
	}
}

// Within reports whether every component of c is at most the same component of limit.
func (c Cost) Within(limit Cost) bool {
	return c.Compute <= limit.Compute && c.Memory <= limit.Memory && c.Animation <= limit.Animation
}

// defaultCosts is the cost table tiers use when they have no better estimate.
var defaultCosts = map[Type]Cost{
	FieldReordering:       {Compute: 3, Memory: 2, Animation: 4},
	ProgressiveDisclosure: {Compute: 2, Memory: 2, Animation: 3},
	ContextSwitching:      {Compute: 4, Memory: 3, Animation: 5},
	ErrorPrevention:       {Compute: 2, Memory: 1, Animation: 1},
	SmartDefaults:         {Compute: 2, Memory: 2, Animation: 0},
	VisualEmphasis:        {Compute: 1, Memory: 1, Animation: 3},
	InputAssistance:       {Compute: 3, Memory: 3, Animation: 1},
}

// DefaultCost returns the table cost for t.
func DefaultCost(t Type) Cost {
	return defaultCosts[t]
}

// Profile is the resource class of the executing client.
type Profile string

const (
	ProfileLow    Profile = "low"
	ProfileMedium Profile = "medium"
	ProfileHigh   Profile = "high"
)

// ParseProfile maps a string to a Profile, defaulting to medium.
func ParseProfile(s string) Profile {
	switch Profile(s) {
	case ProfileLow, ProfileHigh:
		return Profile(s)
	}
	return ProfileMedium
}

// #endregion

// #region priority

// typePriority weights candidates during admission.
var typePriority = map[Type]float64{
	ErrorPrevention:       1.0,
	ContextSwitching:      0.9,
	ProgressiveDisclosure: 0.85,
	FieldReordering:       0.8,
	InputAssistance:       0.75,
	SmartDefaults:         0.7,
	VisualEmphasis:        0.6,
}

// Priority returns the admission weight for t (0.5 for unknown types).
func Priority(t Type) float64 {
	if p, ok := typePriority[t]; ok {
		return p
	}
	return 0.5
}

// #endregion

// #region candidate

// Candidate is a proposed adaptation. Treat as immutable: resolution and
// merging build new candidates via the With* helpers.
type Candidate struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Confidence float64           `json:"confidence"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Source     Tier              `json:"source_tier"`
	Cost       Cost              `json:"cost_estimate"`
	Reasoning  []string          `json:"reasoning,omitempty"`
}

// NewCandidate builds a candidate with the default cost and a deterministic ID.
func NewCandidate(source Tier, t Type, confidence float64, params map[string]string) Candidate {
	return Candidate{
		ID:         CandidateID(source, t),
		Type:       t,
		Confidence: clampUnit(confidence),
		Parameters: copyParams(params),
		Source:     source,
		Cost:       DefaultCost(t),
	}
}

// CandidateID is the stable identifier for the single candidate a tier may
// emit per type.
func CandidateID(source Tier, t Type) string {
	return fmt.Sprintf("%s:%s", source, t)
}

// WithConfidence returns a copy with a new confidence.
func (c Candidate) WithConfidence(conf float64) Candidate {
	out := c.clone()
	out.Confidence = clampUnit(conf)
	return out
}

// WithReasoning returns a copy with lines appended to the reasoning trace.
func (c Candidate) WithReasoning(lines ...string) Candidate {
	out := c.clone()
	out.Reasoning = append(out.Reasoning, lines...)
	return out
}

// Param returns a parameter value or "".
func (c Candidate) Param(key string) string {
	return c.Parameters[key]
}

func (c Candidate) clone() Candidate {
	out := c
	out.Parameters = copyParams(c.Parameters)
	if c.Reasoning != nil {
		out.Reasoning = append([]string(nil), c.Reasoning...)
	}
	return out
}

// Less is the canonical total order: confidence desc, type priority desc,
// tier rank, then ID. Used wherever arrival order must not matter.
func Less(a, b Candidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if pa, pb := Priority(a.Type), Priority(b.Type); pa != pb {
		return pa > pb
	}
	if ra, rb := tierRank[a.Source], tierRank[b.Source]; ra != rb {
		return ra < rb
	}
	return a.ID < b.ID
}

// Sorted returns a canonically ordered copy of cs.
func Sorted(cs []Candidate) []Candidate {
	out := make([]Candidate, len(cs))
	copy(out, cs)
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// #endregion

// #region helpers

func copyParams(p map[string]string) map[string]string {
	if p == nil {
		return nil
	}
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func clampUnit(x float64) float64 {
	if x != x { // NaN
		return 0
	}
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// #endregion
