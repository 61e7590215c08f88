package scoring

import (
	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/features"
)

// #region kind

// Kind tags which closed-form scoring function a Strategy runs.
type Kind string

const (
	KindDecisionTree Kind = "decision_tree"
	KindLinear       Kind = "linear"
	KindCrossTerm    Kind = "cross_term"
)

// #endregion

// #region user-class

// UserClass is the coarse behavioral profile assigned by the decision tree.
type UserClass string

const (
	ClassStruggling UserClass = "struggling"
	ClassHesitant   UserClass = "hesitant"
	ClassMobile     UserClass = "mobile"
	ClassEfficient  UserClass = "efficient"
	ClassExplorer   UserClass = "explorer"
	ClassCasual     UserClass = "casual"
)

// #endregion

// #region weights

// LinearWeights is bias + sum(weights[i] * v[i]) for one adaptation type.
type LinearWeights struct {
	Bias    float64
	Weights map[features.Index]float64
}

// NoIndex marks a cross term as linear in A.
const NoIndex features.Index = -1

// CrossTerm contributes Weight * v[A] * v[B]. With B == NoIndex the term is
// Weight * v[A]. InvertB uses 1 - v[B].
type CrossTerm struct {
	A, B    features.Index
	InvertB bool
	Weight  float64
}

// CrossWeights is bias + the sum of its terms for one adaptation type.
type CrossWeights struct {
	Bias  float64
	Terms []CrossTerm
}

// #endregion

// #region strategy

// Strategy is a tagged variant: Kind selects which of the weight tables is
// read. A zero Strategy behaves as the decision tree.
type Strategy struct {
	Kind   Kind
	Linear map[adaptation.Type]LinearWeights
	Cross  map[adaptation.Type]CrossWeights
}

// #endregion

// #region score

// Score is the raw score for one adaptation type with the trace that produced it.
type Score struct {
	Type    adaptation.Type
	Value   float64
	Reasons []string
}

// #endregion
