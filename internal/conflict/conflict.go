package conflict

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/features"
)

// #region config
// Config holds conflict resolution thresholds.
type Config struct {
	Epsilon       float64 // confidences within this distance are a tie
	HighErrorRate float64 // error rate at which error_prevention wins ties
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Epsilon:       0.05,
		HighErrorRate: 0.2,
	}
}
// #endregion config

// #region context
// Context carries the session facts override rules look at.
type Context struct {
	ErrorRate float64
	Mobile    bool
}

// ContextFrom derives a resolution context from a feature vector.
func ContextFrom(v features.Vector) Context {
	v = v.Clamped()
	return Context{ErrorRate: v[features.ErrorRate], Mobile: v.IsMobile()}
}
// #endregion context

// #region result
// Suppression records a candidate that lost its conflict group.
type Suppression struct {
	ID     string          `json:"id"`
	Type   adaptation.Type `json:"type"`
	Winner string          `json:"winner"`
	Reason string          `json:"reason"`
}

// Result is the resolver output. Candidates is conflict-free and canonically
// ordered.
type Result struct {
	Candidates []adaptation.Candidate
	Suppressed []Suppression
}
// #endregion result

// #region resolver
// Resolver picks at most one candidate per conflict group. Pure and
// deterministic: the output depends on the input set, not its order, and
// resolving a resolved set returns it unchanged.
type Resolver struct {
	config Config
}

// New creates a resolver.
func New(config Config) *Resolver {
	return &Resolver{config: config}
}

// Resolve runs a resolver with the default configuration.
func Resolve(candidates []adaptation.Candidate, ctx Context) Result {
	return New(DefaultConfig()).Resolve(candidates, ctx)
}

// Resolve groups candidates by conflict group, keeps the top candidate of
// each group (subject to tie overrides) and merges it with the best
// candidate of a compatible type when a merge rule exists.
func (r *Resolver) Resolve(candidates []adaptation.Candidate, ctx Context) Result {
	groups := make(map[adaptation.Group][]adaptation.Candidate)
	for _, c := range dedupe(candidates) {
		g := adaptation.GroupOf(c.Type)
		groups[g] = append(groups[g], c)
	}

	names := make([]adaptation.Group, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	var res Result
	for _, g := range names {
		members := groups[g]
		sortCanonical(members)

		winner, reason := r.pick(members, ctx)
		rest := without(members, winner.ID)

		if partner, ok := bestPartner(winner.Type, rest); ok {
			merged, _ := adaptation.Merge(winner, partner)
			rest = without(rest, partner.ID)
			res.Suppressed = append(res.Suppressed, Suppression{
				ID: partner.ID, Type: partner.Type, Winner: merged.ID, Reason: "merged",
			})
			winner = merged
		}
		for _, c := range rest {
			res.Suppressed = append(res.Suppressed, Suppression{
				ID: c.ID, Type: c.Type, Winner: winner.ID, Reason: reason,
			})
		}
		res.Candidates = append(res.Candidates, winner)
	}

	res.Candidates = adaptation.Sorted(res.Candidates)
	return res
}

// pick returns the group winner. members must be canonically sorted.
func (r *Resolver) pick(members []adaptation.Candidate, ctx Context) (adaptation.Candidate, string) {
	top := members[0]
	var tied []adaptation.Candidate
	for _, c := range members[1:] {
		if top.Confidence-c.Confidence <= r.config.Epsilon {
			tied = append(tied, c)
		}
	}
	if len(tied) == 0 {
		return top, "lower confidence"
	}

	contenders := append([]adaptation.Candidate{top}, tied...)
	if ctx.ErrorRate >= r.config.HighErrorRate {
		if c, ok := first(contenders, adaptation.ErrorPrevention); ok && c.ID != top.ID {
			return c.WithReasoning(fmt.Sprintf("won tie: error rate %.2f", ctx.ErrorRate)), "tie override: high error rate"
		}
	}
	if ctx.Mobile {
		if c, ok := first(contenders, adaptation.ContextSwitching); ok && c.ID != top.ID {
			return c.WithReasoning("won tie: mobile device"), "tie override: mobile"
		}
	}
	return top, "tie broken by priority"
}
// #endregion resolver

// #region helpers
// dedupe keeps one candidate per ID, the canonically first.
func dedupe(cs []adaptation.Candidate) []adaptation.Candidate {
	sorted := make([]adaptation.Candidate, len(cs))
	copy(sorted, cs)
	sortCanonical(sorted)

	seen := make(map[string]bool, len(sorted))
	out := sorted[:0]
	for _, c := range sorted {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

// sortCanonical orders by adaptation.Less, then by parameters, cost and
// reasoning so that fully tied candidates still sort the same regardless of
// arrival order.
func sortCanonical(cs []adaptation.Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if adaptation.Less(a, b) {
			return true
		}
		if adaptation.Less(b, a) {
			return false
		}
		if ka, kb := paramsKey(a), paramsKey(b); ka != kb {
			return ka < kb
		}
		if a.Cost != b.Cost {
			return costLess(a.Cost, b.Cost)
		}
		return strings.Join(a.Reasoning, "\n") < strings.Join(b.Reasoning, "\n")
	})
}

func costLess(a, b adaptation.Cost) bool {
	if a.Compute != b.Compute {
		return a.Compute < b.Compute
	}
	if a.Memory != b.Memory {
		return a.Memory < b.Memory
	}
	return a.Animation < b.Animation
}

func paramsKey(c adaptation.Candidate) string {
	keys := make([]string, 0, len(c.Parameters))
	for k := range c.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(c.Parameters[k])
		b.WriteByte(';')
	}
	return b.String()
}

func bestPartner(t adaptation.Type, cs []adaptation.Candidate) (adaptation.Candidate, bool) {
	for _, c := range cs {
		if _, ok := adaptation.MergeType(t, c.Type); ok {
			return c, true
		}
	}
	return adaptation.Candidate{}, false
}

func first(cs []adaptation.Candidate, t adaptation.Type) (adaptation.Candidate, bool) {
	for _, c := range cs {
		if c.Type == t {
			return c, true
		}
	}
	return adaptation.Candidate{}, false
}

func without(cs []adaptation.Candidate, id string) []adaptation.Candidate {
	out := make([]adaptation.Candidate, 0, len(cs))
	for _, c := range cs {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
// #endregion helpers
