package enhance

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/edge"
	"github.com/danielpatrickdp/adaptive-form/internal/features"
	"github.com/danielpatrickdp/adaptive-form/internal/scoring"
)

// #region config

// Config holds Enhancement tier tuning.
type Config struct {
	Enabled             bool
	ConfidenceThreshold float64 // new or refined candidates below this are dropped
	EdgeWeight          float64 // blend weight of the edge score when refining
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		ConfidenceThreshold: 0.4,
		EdgeWeight:          0.6,
	}
}

// #endregion

// #region capability

// Capability describes the execution context the capability gate inspects.
type Capability struct {
	Profile   adaptation.Profile
	Permitted bool // environment allows the enhancement tier at all
}

// #endregion

// #region tier

// Tier re-scores edge candidates with a cross-term model and may add new
// ones. Pure function of its inputs; safe for concurrent use.
type Tier struct {
	config   Config
	strategy scoring.Strategy
}

// New creates an Enhancement tier.
func New(config Config) *Tier {
	return &Tier{
		config:   config,
		strategy: scoring.Strategy{Kind: scoring.KindCrossTerm, Cross: scoring.DefaultCross()},
	}
}

// Capable is the capability gate: enabled, permitted, and not a low profile.
func (t *Tier) Capable(c Capability) bool {
	return t.config.Enabled && c.Permitted && c.Profile != adaptation.ProfileLow
}

// Enhance refines the edge candidates. Every returned candidate is sourced
// from the enhancement tier and carries a reasoning trace. A refined
// candidate supersedes the edge candidate of the same type. Returns early
// with ctx.Err() if the context is already done.
func (t *Tier) Enhance(ctx context.Context, v features.Vector, edgeCandidates []adaptation.Candidate) ([]adaptation.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v = v.Clamped()
	class, _ := scoring.Classify(v)
	scores := scoring.Evaluate(t.strategy, v, class)

	byType := make(map[adaptation.Type]adaptation.Candidate, len(edgeCandidates))
	for _, c := range edgeCandidates {
		if prev, ok := byType[c.Type]; !ok || adaptation.Less(c, prev) {
			byType[c.Type] = c
		}
	}

	w := t.config.EdgeWeight
	var out []adaptation.Candidate
	for _, s := range scores {
		var (
			conf   float64
			params map[string]string
			trace  []string
		)
		if prior, ok := byType[s.Type]; ok {
			conf = w*prior.Confidence + (1-w)*s.Value
			params = prior.Parameters
			trace = append(trace, fmt.Sprintf("refined edge %.2f with cross %.2f", prior.Confidence, s.Value))
		} else {
			conf = s.Value
			params = edge.Parameters(s.Type, class, v)
			trace = append(trace, fmt.Sprintf("added by cross %.2f", s.Value))
		}
		trace = append(trace, s.Reasons...)

		if conf < t.config.ConfidenceThreshold {
			continue
		}
		c := adaptation.NewCandidate(adaptation.TierEnhancement, s.Type, conf, params).WithReasoning(trace...)
		out = append(out, c)
	}
	return adaptation.Sorted(out), nil
}

// #endregion
