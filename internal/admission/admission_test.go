package admission

import (
	"math/rand"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/session"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func cand(t adaptation.Type, conf float64) adaptation.Candidate {
	return adaptation.NewCandidate(adaptation.TierEdge, t, conf, nil)
}

// #region budget-property

func TestAdmit_NeverExceedsBudget(t *testing.T) {
	ctrl := New(DefaultConfig())
	rng := rand.New(rand.NewSource(42))
	profiles := []adaptation.Profile{adaptation.ProfileLow, adaptation.ProfileMedium, adaptation.ProfileHigh}

	for i := 0; i < 500; i++ {
		n := rng.Intn(12)
		cs := make([]adaptation.Candidate, n)
		for j := range cs {
			c := adaptation.NewCandidate(adaptation.TierEdge, adaptation.AllTypes[rng.Intn(len(adaptation.AllTypes))], rng.Float64(), nil)
			c.ID = c.ID + "#" + string(rune('a'+j))
			c.Cost = adaptation.Cost{
				Compute:   rng.Float64() * 8,
				Memory:    rng.Float64() * 6,
				Animation: rng.Float64() * 6,
			}
			cs[j] = c
		}
		for _, p := range profiles {
			res := ctrl.Admit(Request{
				Candidates: cs,
				State:      session.Fresh("s"),
				Profile:    p,
				Now:        now,
				ErrorRate:  rng.Float64(),
				Mobile:     rng.Intn(2) == 0,
			})
			var sum adaptation.Cost
			for _, a := range res.Admitted {
				sum = sum.Add(a.Cost)
			}
			if !sum.Within(ctrl.Budget(p)) {
				t.Fatalf("iteration %d profile %s: admitted cost %+v exceeds budget %+v", i, p, sum, ctrl.Budget(p))
			}
			if len(res.Admitted) > ctrl.MaxPerSession() {
				t.Fatalf("iteration %d: admitted %d above cap", i, len(res.Admitted))
			}
			if len(res.Admitted)+len(res.Rejected) != n {
				t.Fatalf("iteration %d: %d admitted + %d rejected != %d", i, len(res.Admitted), len(res.Rejected), n)
			}
		}
	}
}

func TestAdmit_GreedySkipsOversizedCandidate(t *testing.T) {
	ctrl := New(DefaultConfig())
	big := cand(adaptation.ErrorPrevention, 0.9)
	big.Cost = adaptation.Cost{Compute: 10}
	small := cand(adaptation.VisualEmphasis, 0.5)

	res := ctrl.Admit(Request{
		Candidates: []adaptation.Candidate{big, small},
		State:      session.Fresh("s"),
		Profile:    adaptation.ProfileMedium,
		Now:        now,
	})
	if len(res.Admitted) != 1 || res.Admitted[0].Type != adaptation.VisualEmphasis {
		t.Fatalf("expected the smaller candidate to be admitted, got %+v", res.Admitted)
	}
	if len(res.Rejected) != 1 || res.Rejected[0].Reason != RejectBudget {
		t.Errorf("expected an over_budget rejection, got %+v", res.Rejected)
	}
}

// #endregion budget-property

// #region hard-limits

func TestAdmit_CooldownBlocksEverything(t *testing.T) {
	ctrl := New(DefaultConfig())
	st := session.State{SessionID: "s", IssuedCount: 1, CooldownUntil: now.Add(time.Second)}

	res := ctrl.Admit(Request{
		Candidates: []adaptation.Candidate{cand(adaptation.ErrorPrevention, 1)},
		State:      st,
		Profile:    adaptation.ProfileHigh,
		Now:        now,
	})
	if len(res.Admitted) != 0 {
		t.Fatalf("expected nothing admitted during cooldown, got %d", len(res.Admitted))
	}
	if res.Outcome != OutcomeCooldown {
		t.Errorf("expected cooldown outcome, got %s", res.Outcome)
	}
	if res.StateChanged {
		t.Error("state must not change when nothing is admitted")
	}
	if res.Rejected[0].Reason != RejectCooldown {
		t.Errorf("expected cooldown rejection, got %s", res.Rejected[0].Reason)
	}
}

func TestAdmit_SessionCapReached(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPerSession = 3
	ctrl := New(cfg)

	res := ctrl.Admit(Request{
		Candidates: []adaptation.Candidate{cand(adaptation.ErrorPrevention, 0.99)},
		State:      session.State{SessionID: "s", IssuedCount: 3},
		Profile:    adaptation.ProfileHigh,
		Now:        now,
	})
	if len(res.Admitted) != 0 || res.Outcome != OutcomeCapped {
		t.Fatalf("expected capped outcome with nothing admitted, got %s %+v", res.Outcome, res.Admitted)
	}
}

func TestAdmit_PartialCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPerSession = 3
	ctrl := New(cfg)

	res := ctrl.Admit(Request{
		Candidates: []adaptation.Candidate{
			cand(adaptation.ErrorPrevention, 0.9),
			cand(adaptation.VisualEmphasis, 0.8),
			cand(adaptation.InputAssistance, 0.7),
		},
		State:   session.State{SessionID: "s", IssuedCount: 2},
		Profile: adaptation.ProfileHigh,
		Now:     now,
	})
	if len(res.Admitted) != 1 {
		t.Fatalf("expected 1 admitted under the remaining cap, got %d", len(res.Admitted))
	}
	if res.State.IssuedCount != 3 {
		t.Errorf("issued count should reach the cap exactly, got %d", res.State.IssuedCount)
	}
}

// #endregion hard-limits

// #region state-update

func TestAdmit_UpdatesState(t *testing.T) {
	cfg := DefaultConfig()
	ctrl := New(cfg)

	res := ctrl.Admit(Request{
		Candidates: []adaptation.Candidate{cand(adaptation.ErrorPrevention, 0.8), cand(adaptation.VisualEmphasis, 0.5)},
		State:      session.Fresh("s"),
		Profile:    adaptation.ProfileMedium,
		Now:        now,
	})
	if !res.StateChanged {
		t.Fatal("expected state change")
	}
	if res.State.IssuedCount != 2 {
		t.Errorf("expected count 2, got %d", res.State.IssuedCount)
	}
	if !res.State.LastDecision.Equal(now) {
		t.Errorf("expected last decision %v, got %v", now, res.State.LastDecision)
	}
	if !res.State.CooldownUntil.Equal(now.Add(cfg.CooldownPeriod)) {
		t.Errorf("unexpected cooldown %v", res.State.CooldownUntil)
	}
	if res.Outcome != OutcomeAdmitted {
		t.Errorf("expected admitted outcome, got %s", res.Outcome)
	}
}

func TestAdmit_EmptyCandidatesIsExhausted(t *testing.T) {
	ctrl := New(DefaultConfig())
	res := ctrl.Admit(Request{State: session.Fresh("s"), Profile: adaptation.ProfileHigh, Now: now})
	if res.Outcome != OutcomeExhausted || res.StateChanged {
		t.Errorf("expected exhausted with no state change, got %s changed=%v", res.Outcome, res.StateChanged)
	}
}

func TestAdmit_UnlimitedIgnoresRateLimits(t *testing.T) {
	ctrl := New(DefaultConfig())
	st := session.State{SessionID: "s", IssuedCount: 99, CooldownUntil: now.Add(time.Hour)}
	big := cand(adaptation.ContextSwitching, 0.9)
	big.Cost = adaptation.Cost{Compute: 100}

	res := ctrl.Admit(Request{
		Candidates: []adaptation.Candidate{cand(adaptation.ErrorPrevention, 0.9), big},
		State:      st,
		Profile:    adaptation.ProfileMedium,
		Now:        now,
		Unlimited:  true,
	})
	if len(res.Admitted) != 1 || res.Admitted[0].Type != adaptation.ErrorPrevention {
		t.Fatalf("expected budget to still apply, got %+v", res.Admitted)
	}
	if res.StateChanged {
		t.Error("unlimited admission must not write state")
	}
}

// #endregion state-update

// #region priority

func TestScore_ContextBonuses(t *testing.T) {
	ctrl := New(DefaultConfig())
	ep := cand(adaptation.ErrorPrevention, 0.5)
	cs := cand(adaptation.ContextSwitching, 0.5)

	plain := Request{}
	hot := Request{ErrorRate: 0.4, Mobile: true}

	if got, want := ctrl.Score(ep, plain), 0.5*1.0; got != want {
		t.Errorf("plain ep score: got %f, want %f", got, want)
	}
	if ctrl.Score(ep, hot) <= ctrl.Score(ep, plain) {
		t.Error("error bonus should raise error_prevention")
	}
	if ctrl.Score(cs, hot) <= ctrl.Score(cs, plain) {
		t.Error("mobile bonus should raise context_switching")
	}
}

func TestAdmit_PriorityOrderDecidesUnderTightBudget(t *testing.T) {
	ctrl := New(DefaultConfig())
	// Both fit alone in the low budget, not together.
	ia := cand(adaptation.InputAssistance, 0.8)
	ia.Cost = adaptation.Cost{Compute: 3, Memory: 2, Animation: 1}
	cs := cand(adaptation.ContextSwitching, 0.75)
	cs.Cost = adaptation.Cost{Compute: 3, Memory: 2, Animation: 1}

	// plain: ia 0.8*0.75=0.6 vs cs 0.75*0.9=0.675 -> cs wins
	res := ctrl.Admit(Request{Candidates: []adaptation.Candidate{ia, cs}, State: session.Fresh("s"), Profile: adaptation.ProfileLow, Now: now})
	if len(res.Admitted) != 1 || res.Admitted[0].Type != adaptation.ContextSwitching {
		t.Fatalf("expected context_switching, got %+v", res.Admitted)
	}

	// high error rate: ia 0.6*1.2=0.72 beats cs 0.675
	res = ctrl.Admit(Request{Candidates: []adaptation.Candidate{ia, cs}, State: session.Fresh("s"), Profile: adaptation.ProfileLow, Now: now, ErrorRate: 0.5})
	if len(res.Admitted) != 1 || res.Admitted[0].Type != adaptation.InputAssistance {
		t.Fatalf("expected input_assistance under high error rate, got %+v", res.Admitted)
	}
}

// #endregion priority
