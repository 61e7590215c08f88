package scoring

import (
	"github.com/danielpatrickdp/adaptive-form/internal/features"
)

// #region thresholds

const (
	strugglingErrorRate = 0.2
	hesitantHesitation  = 0.4
	efficientTyping     = 0.5
	efficientMaxErrors  = 0.1
	explorerDensity     = 0.5
)

// #endregion

// #region classify

// Classify walks a fixed decision tree over v. Deterministic; first match wins.
// Inputs outside [0,1] are clamped first.
func Classify(v features.Vector) (UserClass, float64) {
	v = v.Clamped()

	errRate := v[features.ErrorRate]
	hes := v[features.Hesitation]
	typing := v[features.TypingRate]

	switch {
	case errRate >= strugglingErrorRate:
		return ClassStruggling, capConfidence(0.7 + 0.8*(errRate-strugglingErrorRate))
	case hes >= hesitantHesitation:
		return ClassHesitant, capConfidence(0.5 + 0.5*hes)
	case v.IsMobile():
		return ClassMobile, 0.8
	case typing >= efficientTyping && errRate < efficientMaxErrors:
		return ClassEfficient, capConfidence(0.5 + 0.4*typing)
	case v[features.PointerDensity] >= explorerDensity || v[features.ScrollDensity] >= explorerDensity:
		return ClassExplorer, 0.6
	}
	return ClassCasual, 0.5
}

// capConfidence keeps tree confidences below certainty.
func capConfidence(c float64) float64 {
	if c > 0.95 {
		return 0.95
	}
	return c
}

// #endregion
