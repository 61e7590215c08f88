package fallback

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// #region load

// DefaultRules returns the built-in rule table.
func DefaultRules() []Rule {
	rules, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("load rules.yaml: %v", err))
	}
	return rules
}

// LoadRules reads a rule table from path. An empty path yields the built-in table.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules decodes and compiles a YAML rule table.
func ParseRules(data []byte) ([]Rule, error) {
	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(set.Rules) == 0 {
		return nil, fmt.Errorf("parse rules: no rules defined")
	}

	seen := make(map[string]bool, len(set.Rules))
	rules := make([]Rule, 0, len(set.Rules))
	for i, spec := range set.Rules {
		r, err := Compile(spec)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("rule %d: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
		rules = append(rules, r)
	}
	return rules, nil
}

// #endregion load

// #region compile

// Compile validates a spec and turns it into a Rule.
func Compile(spec RuleSpec) (Rule, error) {
	if spec.Name == "" {
		return Rule{}, fmt.Errorf("missing name")
	}
	if !spec.Emit.Type.Valid() {
		return Rule{}, fmt.Errorf("%s: unknown adaptation type %q", spec.Name, spec.Emit.Type)
	}
	if spec.Emit.Confidence < 0 || spec.Emit.Confidence > 1 {
		return Rule{}, fmt.Errorf("%s: confidence %.2f outside [0,1]", spec.Name, spec.Emit.Confidence)
	}

	cond := spec.When
	if cond.Device != "" {
		cond.Device = cond.Device.Normalize()
	}
	emit := spec.Emit
	name := spec.Name

	return Rule{
		Name:     name,
		Priority: spec.Priority,
		When: func(events []behavior.Event) bool {
			return cond.match(summarize(events))
		},
		Build: func([]behavior.Event) adaptation.Candidate {
			c := adaptation.NewCandidate(adaptation.TierFallback, emit.Type, emit.Confidence, emit.Parameters)
			c.ID = RuleCandidateID(name, emit.Type)
			return c.WithReasoning("rule " + name)
		},
	}, nil
}

// RuleCandidateID keeps candidates from different rules distinguishable when
// two rules emit the same type.
func RuleCandidateID(rule string, t adaptation.Type) string {
	return adaptation.CandidateID(adaptation.TierFallback, t) + "#" + rule
}

func (c Conditions) match(s summary) bool {
	switch {
	case s.events < c.MinEvents:
		return false
	case c.MaxEvents != nil && s.events > *c.MaxEvents:
		return false
	case s.corrections < c.MinCorrections:
		return false
	case s.validationErrors < c.MinValidationErrors:
		return false
	case s.maxGapMs < c.MinIdleGapMs:
		return false
	case s.fieldsTouched < c.MinFieldsTouched:
		return false
	case s.scrolls < c.MinScrollEvents:
		return false
	case c.Device != "" && s.device != c.Device:
		return false
	}
	return true
}

func summarize(events []behavior.Event) summary {
	s := summary{events: len(events), device: behavior.DeviceUnknown}
	if len(events) == 0 {
		return s
	}

	ts := make([]int64, len(events))
	fields := make(map[string]bool)
	for i, e := range events {
		ts[i] = e.Timestamp
		switch e.Type {
		case behavior.EventKeyPress:
			if e.IsCorrection() {
				s.corrections++
			}
		case behavior.EventValidationError:
			s.validationErrors++
		case behavior.EventScroll:
			s.scrolls++
		}
		if e.FieldName != "" {
			fields[e.FieldName] = true
		}
	}
	s.fieldsTouched = len(fields)
	s.device = behavior.Batch{Events: events}.DeviceHint()

	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	for i := 1; i < len(ts); i++ {
		if gap := ts[i] - ts[i-1]; gap > s.maxGapMs {
			s.maxGapMs = gap
		}
	}
	return s
}

// #endregion compile
