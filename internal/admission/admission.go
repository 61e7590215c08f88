package admission

import (
	"fmt"
	"sort"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
)

// #region controller
// Controller trims a conflict-free candidate set to what the session's rate
// limits and the client's resource budget allow. It is the only producer of
// new session.State values.
type Controller struct {
	config Config
}

// New creates an admission controller.
func New(config Config) *Controller {
	if config.Budgets == nil {
		config.Budgets = DefaultBudgets()
	}
	return &Controller{config: config}
}

// Budget returns the resource budget of a profile. Unknown profiles get the
// medium budget.
func (c *Controller) Budget(p adaptation.Profile) adaptation.Cost {
	if b, ok := c.config.Budgets[p]; ok {
		return b
	}
	return c.config.Budgets[adaptation.ProfileMedium]
}

// MaxPerSession returns the configured per-session cap.
func (c *Controller) MaxPerSession() int {
	return c.config.MaxPerSession
}

// Admit checks the hard limits first (cooldown, session cap), then admits
// candidates greedily in priority order while the running cost stays within
// the profile budget and the session cap.
func (c *Controller) Admit(req Request) Result {
	res := Result{
		Budget: c.Budget(req.Profile),
		State:  req.State,
	}

	// --- Hard limits ---
	if !req.Unlimited {
		if req.State.InCooldown(req.Now) {
			res.Outcome = OutcomeCooldown
			res.Reason = fmt.Sprintf("cooldown until %s", req.State.CooldownUntil.Format("15:04:05.000"))
			res.Rejected = rejectAll(req.Candidates, RejectCooldown, "")
			return res
		}
		if req.State.IssuedCount >= c.config.MaxPerSession {
			res.Outcome = OutcomeCapped
			res.Reason = fmt.Sprintf("session cap %d reached", c.config.MaxPerSession)
			res.Rejected = rejectAll(req.Candidates, RejectCap, "")
			return res
		}
	}

	// --- Greedy admission ---
	remaining := c.config.MaxPerSession - req.State.IssuedCount
	for _, cand := range c.prioritize(req) {
		if !req.Unlimited && len(res.Admitted) >= remaining {
			res.Rejected = append(res.Rejected, Rejection{
				ID: cand.ID, Type: cand.Type, Reason: RejectCap,
				Detail: fmt.Sprintf("%d already issued", req.State.IssuedCount+len(res.Admitted)),
			})
			continue
		}
		next := res.Spent.Add(cand.Cost)
		if !next.Within(res.Budget) {
			res.Rejected = append(res.Rejected, Rejection{
				ID: cand.ID, Type: cand.Type, Reason: RejectBudget,
				Detail: fmt.Sprintf("needs %+v with %+v spent of %+v", cand.Cost, res.Spent, res.Budget),
			})
			continue
		}
		res.Spent = next
		res.Admitted = append(res.Admitted, cand)
	}

	if len(res.Admitted) == 0 {
		res.Outcome = OutcomeExhausted
		res.Reason = fmt.Sprintf("0 of %d admitted", len(req.Candidates))
		return res
	}

	res.Outcome = OutcomeAdmitted
	res.Reason = fmt.Sprintf("admitted %d of %d", len(res.Admitted), len(req.Candidates))
	if !req.Unlimited {
		st := req.State
		st.LastDecision = req.Now
		st.CooldownUntil = req.Now.Add(c.config.CooldownPeriod)
		st.IssuedCount += len(res.Admitted)
		st.UpdatedAt = req.Now
		res.State = st
		res.StateChanged = true
	}
	return res
}
// #endregion controller

// #region priority
// Score is the admission priority: confidence x type priority x contextual bonus.
func (c *Controller) Score(cand adaptation.Candidate, req Request) float64 {
	bonus := 1.0
	switch cand.Type {
	case adaptation.ErrorPrevention, adaptation.InputAssistance:
		if req.ErrorRate >= c.config.HighErrorRate {
			bonus += c.config.ErrorBonus
		}
	case adaptation.ContextSwitching, adaptation.ProgressiveDisclosure:
		if req.Mobile {
			bonus += c.config.MobileBonus
		}
	}
	return cand.Confidence * adaptation.Priority(cand.Type) * bonus
}

func (c *Controller) prioritize(req Request) []adaptation.Candidate {
	out := adaptation.Sorted(req.Candidates)
	scores := make(map[string]float64, len(out))
	for _, cand := range out {
		scores[cand.ID] = c.Score(cand, req)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return scores[out[i].ID] > scores[out[j].ID]
	})
	return out
}
// #endregion priority

// #region helpers
func rejectAll(cs []adaptation.Candidate, reason RejectReason, detail string) []Rejection {
	out := make([]Rejection, 0, len(cs))
	for _, c := range adaptation.Sorted(cs) {
		out = append(out, Rejection{ID: c.ID, Type: c.Type, Reason: reason, Detail: detail})
	}
	return out
}
// #endregion helpers
