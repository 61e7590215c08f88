package scoring

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/features"
	"github.com/google/go-cmp/cmp"
)

func vec(overrides map[features.Index]float64) features.Vector {
	var v features.Vector
	for i, x := range overrides {
		v[i] = x
	}
	return v
}

func scoreOf(scores []Score, t adaptation.Type) float64 {
	for _, s := range scores {
		if s.Type == t {
			return s.Value
		}
	}
	return math.NaN()
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		v    features.Vector
		want UserClass
	}{
		{"struggling", vec(map[features.Index]float64{features.ErrorRate: 0.3}), ClassStruggling},
		{"hesitant", vec(map[features.Index]float64{features.Hesitation: 0.6}), ClassHesitant},
		{"mobile", vec(map[features.Index]float64{features.DeviceClass: 1}), ClassMobile},
		{"efficient", vec(map[features.Index]float64{features.TypingRate: 0.7}), ClassEfficient},
		{"explorer", vec(map[features.Index]float64{features.ScrollDensity: 0.8}), ClassExplorer},
		{"casual", vec(nil), ClassCasual},
		{"errors-beat-mobile", vec(map[features.Index]float64{features.ErrorRate: 0.5, features.DeviceClass: 1}), ClassStruggling},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, conf := Classify(tt.v)
			if got != tt.want {
				t.Errorf("class: got %q, want %q", got, tt.want)
			}
			if conf <= 0 || conf > 0.95 {
				t.Errorf("confidence out of range: %f", conf)
			}
		})
	}
}

func TestClassify_ClampsMalformedInput(t *testing.T) {
	v := vec(map[features.Index]float64{features.ErrorRate: math.NaN(), features.Hesitation: 7})
	class, _ := Classify(v)
	// NaN error rate repairs to 0.5 which is above the struggling threshold.
	if class != ClassStruggling {
		t.Errorf("expected struggling after NaN repair, got %s", class)
	}
}

func TestEvaluate_TreeErrorBoost(t *testing.T) {
	v := vec(map[features.Index]float64{features.ErrorRate: 0.3, features.TypingRate: 0.6})
	class, _ := Classify(v)
	scores := Evaluate(Strategy{Kind: KindDecisionTree}, v, class)

	if len(scores) != len(adaptation.AllTypes) {
		t.Fatalf("expected %d scores, got %d", len(adaptation.AllTypes), len(scores))
	}
	ep := scoreOf(scores, adaptation.ErrorPrevention)
	if math.Abs(ep-0.75) > 1e-9 {
		t.Errorf("expected error_prevention 0.75, got %f", ep)
	}
}

func TestEvaluate_ZeroStrategyIsTree(t *testing.T) {
	v := features.Default()
	class, _ := Classify(v)
	a := Evaluate(Strategy{}, v, class)
	b := Evaluate(Strategy{Kind: KindDecisionTree}, v, class)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("zero strategy should behave as the tree (-zero +tree):\n%s", diff)
	}
}

func TestEvaluate_LinearAndCrossInRange(t *testing.T) {
	v := vec(map[features.Index]float64{
		features.ErrorRate: 1, features.Hesitation: 1, features.TypingRate: 1,
		features.DeviceClass: 1, features.ScrollDensity: 1, features.CompletionEstimate: 1,
	})
	for _, kind := range []Kind{KindLinear, KindCrossTerm} {
		scores := Evaluate(Strategy{Kind: kind}, v, ClassCasual)
		if len(scores) == 0 {
			t.Fatalf("%s: no scores", kind)
		}
		for _, s := range scores {
			if s.Value < 0 || s.Value > 1 {
				t.Errorf("%s/%s: score %f out of range", kind, s.Type, s.Value)
			}
			if len(s.Reasons) == 0 {
				t.Errorf("%s/%s: expected a reasoning trace", kind, s.Type)
			}
		}
	}
}

func TestEvaluate_CrossTermReasoning(t *testing.T) {
	v := vec(map[features.Index]float64{features.ErrorRate: 0.5, features.Hesitation: 0.4})
	scores := Evaluate(Strategy{Kind: KindCrossTerm}, v, ClassStruggling)
	for _, s := range scores {
		if s.Type != adaptation.ErrorPrevention {
			continue
		}
		want := []string{
			"bias=0.20",
			"error_rate*hesitation=0.20 w=0.90",
			"error_rate*typing_rate=0.00 w=0.60",
			"error_rate=0.50 w=0.40",
		}
		if diff := cmp.Diff(want, s.Reasons); diff != "" {
			t.Errorf("reasoning mismatch (-want +got):\n%s", diff)
		}
		// 0.2 + 0.9*0.2 + 0 + 0.4*0.5
		if math.Abs(s.Value-0.58) > 1e-9 {
			t.Errorf("expected 0.58, got %f", s.Value)
		}
		return
	}
	t.Fatal("error_prevention missing from cross-term scores")
}
