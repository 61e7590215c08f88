package edge

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/features"
	"github.com/danielpatrickdp/adaptive-form/internal/scoring"
)

// #region config

// Config holds Edge tier tuning.
type Config struct {
	ConfidenceThreshold float64      // candidates below this are dropped
	Strategy            scoring.Kind // decision_tree (default) or linear
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.4,
		Strategy:            scoring.KindDecisionTree,
	}
}

// #endregion

// #region result

// Result is the Edge tier output.
type Result struct {
	Class      scoring.UserClass
	Confidence float64
	Candidates []adaptation.Candidate
}

// #endregion

// #region tier

// Tier is the fast first-pass scorer. Stateless and safe for concurrent use.
type Tier struct {
	config   Config
	strategy scoring.Strategy
}

// New creates an Edge tier.
func New(config Config) *Tier {
	s := scoring.Strategy{Kind: config.Strategy}
	if config.Strategy == scoring.KindLinear {
		s.Linear = scoring.DefaultLinear()
	}
	return &Tier{config: config, strategy: s}
}

// Classify scores v and returns the class plus candidates at or above the
// confidence threshold, highest first. Never errors: malformed feature
// values are clamped. The context is accepted for interface symmetry with
// the slower tiers; the computation does not block.
func (t *Tier) Classify(_ context.Context, v features.Vector) (Result, error) {
	v = v.Clamped()
	class, conf := scoring.Classify(v)
	scores := scoring.Evaluate(t.strategy, v, class)

	candidates := make([]adaptation.Candidate, 0, len(scores))
	for _, s := range scores {
		if s.Value < t.config.ConfidenceThreshold {
			continue
		}
		c := adaptation.NewCandidate(adaptation.TierEdge, s.Type, s.Value, Parameters(s.Type, class, v))
		candidates = append(candidates, c)
	}

	return Result{
		Class:      class,
		Confidence: conf,
		Candidates: adaptation.Sorted(candidates),
	}, nil
}

// #endregion

// #region parameters

// Parameters builds the rendering hints for an adaptation type. Shared with
// the Enhancement tier so both tiers describe the same change identically.
func Parameters(t adaptation.Type, class scoring.UserClass, v features.Vector) map[string]string {
	p := map[string]string{"user_class": string(class)}
	switch t {
	case adaptation.FieldReordering:
		p["order"] = "completion_first"
		if v[features.ErrorRate] > 0.2 {
			p["order"] = "error_prone_last"
		}
	case adaptation.ProgressiveDisclosure:
		p["reveal"] = "on_focus"
		p["batch_size"] = "3"
		if v.IsMobile() {
			p["batch_size"] = "2"
		}
	case adaptation.ContextSwitching:
		p["layout"] = "single_column"
		if !v.IsMobile() {
			p["layout"] = "stepped"
		}
	case adaptation.ErrorPrevention:
		p["mode"] = "inline_validation"
		if v[features.ErrorRate] > 0.4 {
			p["mode"] = "format_masks"
		}
	case adaptation.SmartDefaults:
		p["source"] = "session_history"
	case adaptation.VisualEmphasis:
		p["target"] = "next_required_field"
	case adaptation.InputAssistance:
		p["assist"] = "autocomplete"
		if v[features.Hesitation] > 0.4 {
			p["assist"] = "examples"
		}
	}
	p["error_rate"] = fmt.Sprintf("%.2f", v[features.ErrorRate])
	return p
}

// #endregion
