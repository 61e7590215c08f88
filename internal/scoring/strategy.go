package scoring

import (
	"fmt"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/features"
)

// #region base-scores

// baseScores maps (UserClass, Type) to the decision-tree starting score.
var baseScores = map[UserClass]map[adaptation.Type]float64{
	ClassStruggling: {
		adaptation.ErrorPrevention:       0.6,
		adaptation.InputAssistance:       0.5,
		adaptation.ProgressiveDisclosure: 0.45,
		adaptation.SmartDefaults:         0.35,
		adaptation.FieldReordering:       0.3,
		adaptation.VisualEmphasis:        0.3,
		adaptation.ContextSwitching:      0.2,
	},
	ClassHesitant: {
		adaptation.ProgressiveDisclosure: 0.6,
		adaptation.VisualEmphasis:        0.5,
		adaptation.InputAssistance:       0.4,
		adaptation.ErrorPrevention:       0.35,
		adaptation.FieldReordering:       0.3,
		adaptation.SmartDefaults:         0.3,
		adaptation.ContextSwitching:      0.2,
	},
	ClassMobile: {
		adaptation.ContextSwitching:      0.6,
		adaptation.ProgressiveDisclosure: 0.55,
		adaptation.InputAssistance:       0.45,
		adaptation.SmartDefaults:         0.4,
		adaptation.FieldReordering:       0.35,
		adaptation.ErrorPrevention:       0.3,
		adaptation.VisualEmphasis:        0.25,
	},
	ClassEfficient: {
		adaptation.SmartDefaults:         0.55,
		adaptation.FieldReordering:       0.5,
		adaptation.InputAssistance:       0.3,
		adaptation.ProgressiveDisclosure: 0.2,
		adaptation.ErrorPrevention:       0.2,
		adaptation.VisualEmphasis:        0.2,
		adaptation.ContextSwitching:      0.15,
	},
	ClassExplorer: {
		adaptation.VisualEmphasis:        0.55,
		adaptation.FieldReordering:       0.45,
		adaptation.ProgressiveDisclosure: 0.4,
		adaptation.SmartDefaults:         0.3,
		adaptation.ErrorPrevention:       0.25,
		adaptation.InputAssistance:       0.25,
		adaptation.ContextSwitching:      0.25,
	},
	ClassCasual: {
		adaptation.ProgressiveDisclosure: 0.45,
		adaptation.VisualEmphasis:        0.4,
		adaptation.FieldReordering:       0.35,
		adaptation.SmartDefaults:         0.35,
		adaptation.ErrorPrevention:       0.3,
		adaptation.InputAssistance:       0.3,
		adaptation.ContextSwitching:      0.2,
	},
}

// #endregion

// #region evaluate

// Evaluate scores every adaptation type in canonical order using the
// strategy's variant. Pure: no state, no I/O. Scores are clamped to [0,1].
func Evaluate(s Strategy, v features.Vector, class UserClass) []Score {
	v = v.Clamped()
	var scores []Score
	switch s.Kind {
	case KindLinear:
		scores = evaluateLinear(s.Linear, v)
	case KindCrossTerm:
		scores = evaluateCross(s.Cross, v)
	default:
		scores = evaluateTree(v, class)
	}
	for i := range scores {
		scores[i].Value = features.Clamp(scores[i].Value)
	}
	return scores
}

// #endregion

// #region decision-tree

func evaluateTree(v features.Vector, class UserClass) []Score {
	base, ok := baseScores[class]
	if !ok {
		base = baseScores[ClassCasual]
	}

	scores := make([]Score, 0, len(adaptation.AllTypes))
	for _, t := range adaptation.AllTypes {
		s := Score{Type: t, Value: base[t]}
		s.Reasons = append(s.Reasons, fmt.Sprintf("base[%s]=%.2f", class, base[t]))
		adjustTree(&s, v)
		scores = append(scores, s)
	}
	return scores
}

// adjustTree applies the feature-dependent boosts on top of the class base.
func adjustTree(s *Score, v features.Vector) {
	add := func(delta float64, why string) {
		if delta == 0 {
			return
		}
		s.Value += delta
		s.Reasons = append(s.Reasons, fmt.Sprintf("%s %+.2f", why, delta))
	}

	errRate := v[features.ErrorRate]
	hes := v[features.Hesitation]
	typing := v[features.TypingRate]

	switch s.Type {
	case adaptation.ErrorPrevention:
		if errRate > 0.15 {
			add(0.5*errRate, "error_rate")
		}
	case adaptation.InputAssistance:
		if errRate > 0.15 {
			add(0.2*errRate, "error_rate")
		}
	case adaptation.ProgressiveDisclosure:
		if hes > 0.3 {
			add(0.3*hes, "hesitation")
		}
	case adaptation.VisualEmphasis:
		if hes > 0.3 {
			add(0.2*hes, "hesitation")
		}
		if v[features.ScrollDensity] > 0.5 {
			add(0.1, "scroll_density")
		}
	case adaptation.ContextSwitching:
		if v.IsMobile() {
			add(0.15, "mobile")
		}
	case adaptation.FieldReordering:
		if v.IsMobile() {
			add(-0.1, "mobile")
		}
		if c := v[features.CompletionEstimate]; c > 0.6 {
			add(0.2*c, "completion_estimate")
		}
	case adaptation.SmartDefaults:
		if typing > 0.6 && errRate < 0.1 {
			add(0.15, "fluent_typing")
		}
	}
}

// #endregion

// #region linear

func evaluateLinear(table map[adaptation.Type]LinearWeights, v features.Vector) []Score {
	if table == nil {
		table = DefaultLinear()
	}
	scores := make([]Score, 0, len(adaptation.AllTypes))
	for _, t := range adaptation.AllTypes {
		w, ok := table[t]
		if !ok {
			continue
		}
		s := Score{Type: t, Value: w.Bias}
		s.Reasons = append(s.Reasons, fmt.Sprintf("bias=%.2f", w.Bias))
		for i := features.Index(0); i < features.Arity; i++ {
			wi, ok := w.Weights[i]
			if !ok || wi == 0 {
				continue
			}
			contrib := wi * v[i]
			s.Value += contrib
			s.Reasons = append(s.Reasons, fmt.Sprintf("%s %+.2f", i, contrib))
		}
		scores = append(scores, s)
	}
	return scores
}

// DefaultLinear is the built-in linear table for the Edge tier's linear variant.
func DefaultLinear() map[adaptation.Type]LinearWeights {
	return map[adaptation.Type]LinearWeights{
		adaptation.ErrorPrevention: {Bias: 0.2, Weights: map[features.Index]float64{
			features.ErrorRate: 1.2, features.Hesitation: 0.2,
		}},
		adaptation.InputAssistance: {Bias: 0.15, Weights: map[features.Index]float64{
			features.ErrorRate: 0.5, features.TypingRate: 0.2,
		}},
		adaptation.ProgressiveDisclosure: {Bias: 0.2, Weights: map[features.Index]float64{
			features.Hesitation: 0.6, features.CompletionEstimate: 0.2,
		}},
		adaptation.FieldReordering: {Bias: 0.15, Weights: map[features.Index]float64{
			features.CompletionEstimate: 0.4, features.ClickDensity: 0.2, features.DeviceClass: -0.1,
		}},
		adaptation.ContextSwitching: {Bias: 0.1, Weights: map[features.Index]float64{
			features.DeviceClass: 0.5, features.ScrollDensity: 0.2,
		}},
		adaptation.SmartDefaults: {Bias: 0.15, Weights: map[features.Index]float64{
			features.TypingRate: 0.4, features.ErrorRate: -0.3,
		}},
		adaptation.VisualEmphasis: {Bias: 0.15, Weights: map[features.Index]float64{
			features.PointerDensity: 0.3, features.ScrollDensity: 0.3, features.Hesitation: 0.2,
		}},
	}
}

// #endregion

// #region cross-term

func evaluateCross(table map[adaptation.Type]CrossWeights, v features.Vector) []Score {
	if table == nil {
		table = DefaultCross()
	}
	scores := make([]Score, 0, len(adaptation.AllTypes))
	for _, t := range adaptation.AllTypes {
		w, ok := table[t]
		if !ok {
			continue
		}
		s := Score{Type: t, Value: w.Bias}
		s.Reasons = append(s.Reasons, fmt.Sprintf("bias=%.2f", w.Bias))
		for _, term := range w.Terms {
			val, label := term.eval(v)
			contrib := term.Weight * val
			s.Value += contrib
			s.Reasons = append(s.Reasons, fmt.Sprintf("%s=%.2f w=%.2f", label, val, term.Weight))
		}
		scores = append(scores, s)
	}
	return scores
}

func (c CrossTerm) eval(v features.Vector) (float64, string) {
	if c.A < 0 || c.A >= features.Arity {
		return 0, "invalid"
	}
	if c.B == NoIndex || c.B < 0 || c.B >= features.Arity {
		return v[c.A], c.A.String()
	}
	b := v[c.B]
	bName := c.B.String()
	if c.InvertB {
		b = 1 - b
		bName = "(1-" + bName + ")"
	}
	return v[c.A] * b, c.A.String() + "*" + bName
}

// DefaultCross is the built-in cross-term table used by the Enhancement tier.
func DefaultCross() map[adaptation.Type]CrossWeights {
	return map[adaptation.Type]CrossWeights{
		adaptation.ErrorPrevention: {Bias: 0.2, Terms: []CrossTerm{
			{A: features.ErrorRate, B: features.Hesitation, Weight: 0.9},
			{A: features.ErrorRate, B: features.TypingRate, Weight: 0.6},
			{A: features.ErrorRate, B: NoIndex, Weight: 0.4},
		}},
		adaptation.ProgressiveDisclosure: {Bias: 0.15, Terms: []CrossTerm{
			{A: features.Hesitation, B: features.CompletionEstimate, Weight: 0.8},
			{A: features.DeviceClass, B: features.ScrollDensity, Weight: 0.4},
			{A: features.Hesitation, B: NoIndex, Weight: 0.3},
		}},
		adaptation.FieldReordering: {Bias: 0.15, Terms: []CrossTerm{
			{A: features.CompletionEstimate, B: features.SessionDuration, Weight: 0.7},
			{A: features.ClickDensity, B: features.Hesitation, Weight: 0.4},
			{A: features.CompletionEstimate, B: features.DeviceClass, InvertB: true, Weight: 0.2},
		}},
		adaptation.ContextSwitching: {Bias: 0.1, Terms: []CrossTerm{
			{A: features.DeviceClass, B: features.ScrollDensity, Weight: 0.7},
			{A: features.DeviceClass, B: NoIndex, Weight: 0.3},
		}},
		adaptation.SmartDefaults: {Bias: 0.15, Terms: []CrossTerm{
			{A: features.TypingRate, B: features.ErrorRate, InvertB: true, Weight: 0.6},
			{A: features.SessionDuration, B: NoIndex, Weight: 0.2},
		}},
		adaptation.VisualEmphasis: {Bias: 0.1, Terms: []CrossTerm{
			{A: features.PointerDensity, B: features.Hesitation, Weight: 0.6},
			{A: features.ScrollDensity, B: NoIndex, Weight: 0.3},
		}},
		adaptation.InputAssistance: {Bias: 0.1, Terms: []CrossTerm{
			{A: features.ErrorRate, B: features.TypingRate, Weight: 0.5},
			{A: features.TimeOfDay, B: features.Hesitation, Weight: 0.3},
		}},
	}
}

// #endregion
