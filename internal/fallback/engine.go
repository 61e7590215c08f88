package fallback

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
	"github.com/danielpatrickdp/adaptive-form/internal/logging"
)

// #region engine

// Engine evaluates a static rule table. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	rules  []Rule
	logger *slog.Logger
}

// New creates an engine over rules. The slice is copied and ordered by
// priority (desc) then name.
func New(rules []Rule) *Engine {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].Name < ordered[j].Name
	})
	return &Engine{rules: ordered, logger: logging.New("fallback")}
}

// Rules returns the rule table in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// #endregion engine

// #region evaluate

// Evaluate runs every rule and returns the candidates of all firing rules in
// priority order. Never panics: a rule that panics or builds an invalid
// candidate is skipped.
func (e *Engine) Evaluate(events []behavior.Event) []adaptation.Candidate {
	var out []adaptation.Candidate
	for _, r := range e.rules {
		c, fired, err := evalRule(r, events)
		if err != nil {
			e.logger.Warn("fallback rule skipped", "rule", r.Name, "error", err)
			continue
		}
		if fired {
			out = append(out, c)
		}
	}
	return out
}

func evalRule(r Rule, events []behavior.Event) (c adaptation.Candidate, fired bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			c, fired, err = adaptation.Candidate{}, false, fmt.Errorf("panic: %v", p)
		}
	}()

	if r.When == nil || r.Build == nil {
		return c, false, fmt.Errorf("incomplete rule")
	}
	if !r.When(events) {
		return c, false, nil
	}
	c = r.Build(events)
	if !c.Type.Valid() {
		return adaptation.Candidate{}, false, fmt.Errorf("invalid candidate type %q", c.Type)
	}
	if c.Source != adaptation.TierFallback || c.ID == "" {
		c.Source = adaptation.TierFallback
		c.ID = RuleCandidateID(r.Name, c.Type)
	}
	return c, true, nil
}

// #endregion evaluate
