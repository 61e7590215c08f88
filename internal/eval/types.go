package eval

import (
	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/admission"
)

// #region eval-config
// EvalConfig holds the limits a decision is audited against.
type EvalConfig struct {
	Budgets       map[adaptation.Profile]adaptation.Cost
	MaxPerSession int
	LatencyMs     float64 // warn if total pipeline time exceeds this
}

// DefaultEvalConfig mirrors the production admission limits.
func DefaultEvalConfig() EvalConfig {
	a := admission.DefaultConfig()
	return EvalConfig{
		Budgets:       a.Budgets,
		MaxPerSession: a.MaxPerSession,
		LatencyMs:     500,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of a decision audit.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// Metric returns the named metric, if present.
func (r EvalResult) Metric(name string) (EvalMetric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return EvalMetric{}, false
}

// #endregion eval-result
