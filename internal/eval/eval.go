package eval

import (
	"fmt"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/pipeline"
)

// #region eval-harness
// EvalHarness re-checks a finished decision against the output guarantees:
// conflict-free, within budget, under the session cap, sane confidences.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run audits d. priorIssued is the session's issued count before d.
func (h *EvalHarness) Run(d pipeline.Decision, priorIssued int) EvalResult {
	var metrics []EvalMetric
	var failReasons []string

	check := func(name string, value float64, pass bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: pass})
		if !pass {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. No two admitted candidates may share a conflict group.
	conflicts := conflictingPairs(d.Candidates)
	check("conflicting_pairs", float64(conflicts), conflicts == 0,
		fmt.Sprintf("%d conflicting candidate pairs", conflicts))

	// 2. Summed cost within the profile budget, per component.
	spent := totalCost(d.Candidates)
	budget, ok := h.config.Budgets[d.Profile]
	if !ok {
		budget = h.config.Budgets[adaptation.ProfileMedium]
	}
	for _, c := range []struct {
		name         string
		spent, limit float64
	}{
		{"compute", spent.Compute, budget.Compute},
		{"memory", spent.Memory, budget.Memory},
		{"animation", spent.Animation, budget.Animation},
	} {
		check("budget_"+c.name, c.spent, c.spent <= c.limit,
			fmt.Sprintf("%s cost %.2f exceeds %.2f", c.name, c.spent, c.limit))
	}

	// 3. Session cap.
	issued := priorIssued + len(d.Candidates)
	check("issued_count", float64(issued), issued <= h.config.MaxPerSession,
		fmt.Sprintf("issued %d exceeds cap %d", issued, h.config.MaxPerSession))

	// 4. Every candidate well-formed.
	bad := malformed(d.Candidates)
	check("malformed_candidates", float64(bad), bad == 0,
		fmt.Sprintf("%d candidates with invalid type or confidence", bad))

	// 5. An edge failure must be flagged as degraded.
	consistent := d.Tiers[adaptation.TierEdge] == pipeline.StatusOK || d.FallbackUsed
	check("fallback_flag", boolValue(d.FallbackUsed), consistent,
		"edge tier did not succeed but fallback_used is false")

	// 6. Latency: informational only, does not fail
	metrics = append(metrics, EvalMetric{
		Name:  "total_ms",
		Value: d.Timings.TotalMs,
		Pass:  d.Timings.TotalMs <= h.config.LatencyMs,
	})

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}

	return EvalResult{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
func conflictingPairs(cs []adaptation.Candidate) int {
	n := 0
	for i := range cs {
		for j := i + 1; j < len(cs); j++ {
			if adaptation.Conflicts(cs[i].Type, cs[j].Type) {
				n++
			}
		}
	}
	return n
}

func totalCost(cs []adaptation.Candidate) adaptation.Cost {
	var sum adaptation.Cost
	for _, c := range cs {
		sum = sum.Add(c.Cost)
	}
	return sum
}

func malformed(cs []adaptation.Candidate) int {
	n := 0
	for _, c := range cs {
		if !c.Type.Valid() || c.Confidence < 0 || c.Confidence > 1 {
			n++
		}
	}
	return n
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
