package adaptation

import (
	"sort"
	"strings"
)

// #region groups

// Group names a set of adaptation types that cannot coexist on one form.
// Groups partition the taxonomy, so the conflict relation is symmetric and
// every type conflicts with itself.
type Group string

const (
	GroupLayout     Group = "layout"
	GroupAssistance Group = "assistance"
	GroupEmphasis   Group = "emphasis"
	GroupInput      Group = "input"
)

// Groups is the canonical conflict table.
var Groups = map[Group][]Type{
	GroupLayout:     {FieldReordering, ProgressiveDisclosure, ContextSwitching},
	GroupAssistance: {ErrorPrevention, SmartDefaults},
	GroupEmphasis:   {VisualEmphasis},
	GroupInput:      {InputAssistance},
}

var typeGroup = func() map[Type]Group {
	m := make(map[Type]Group)
	for g, types := range Groups {
		for _, t := range types {
			m[t] = g
		}
	}
	return m
}()

// GroupOf returns the conflict group of t. Unknown types get a singleton
// group of their own so they still conflict with themselves.
func GroupOf(t Type) Group {
	if g, ok := typeGroup[t]; ok {
		return g
	}
	return Group("type:" + string(t))
}

// Conflicts reports whether a and b cannot both apply to the same form.
func Conflicts(a, b Type) bool {
	return GroupOf(a) == GroupOf(b)
}

// GroupNames returns group names in sorted order.
func GroupNames() []Group {
	names := make([]Group, 0, len(Groups))
	for g := range Groups {
		names = append(names, g)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// #endregion

// #region merge

// mergeRules maps an unordered type pair to the type the merged candidate keeps.
var mergeRules = map[[2]Type]Type{
	pairKey(ErrorPrevention, SmartDefaults): ErrorPrevention,
}

func pairKey(a, b Type) [2]Type {
	if a > b {
		a, b = b, a
	}
	return [2]Type{a, b}
}

// MergeType returns the type a merged candidate of a and b carries, if a
// merge rule exists for the pair.
func MergeType(a, b Type) (Type, bool) {
	if a == b {
		return "", false
	}
	t, ok := mergeRules[pairKey(a, b)]
	return t, ok
}

// Merge combines two candidates under a merge rule: union of parameters
// (the kept type's values win on key collision), max confidence, summed
// cost, concatenated reasoning. Returns false if no rule exists.
func Merge(a, b Candidate) (Candidate, bool) {
	kept, ok := MergeType(a.Type, b.Type)
	if !ok {
		return Candidate{}, false
	}
	primary, secondary := a, b
	if b.Type == kept {
		primary, secondary = b, a
	}

	params := make(map[string]string, len(primary.Parameters)+len(secondary.Parameters)+1)
	for k, v := range secondary.Parameters {
		params[k] = v
	}
	for k, v := range primary.Parameters {
		params[k] = v
	}
	params["merged_from"] = strings.Join([]string{string(primary.Type), string(secondary.Type)}, ",")

	conf := primary.Confidence
	if secondary.Confidence > conf {
		conf = secondary.Confidence
	}

	var reasoning []string
	reasoning = append(reasoning, primary.Reasoning...)
	reasoning = append(reasoning, secondary.Reasoning...)
	reasoning = append(reasoning, "merged "+string(secondary.Type)+" into "+string(primary.Type))

	return Candidate{
		ID:         primary.ID + "+" + secondary.ID,
		Type:       kept,
		Confidence: conf,
		Parameters: params,
		Source:     primary.Source,
		Cost:       primary.Cost.Add(secondary.Cost),
		Reasoning:  reasoning,
	}, true
}

// #endregion
