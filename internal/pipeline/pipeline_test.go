package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/admission"
	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
	"github.com/danielpatrickdp/adaptive-form/internal/edge"
	"github.com/danielpatrickdp/adaptive-form/internal/enhance"
	"github.com/danielpatrickdp/adaptive-form/internal/fallback"
	"github.com/danielpatrickdp/adaptive-form/internal/features"
	"github.com/danielpatrickdp/adaptive-form/internal/session"
	"github.com/google/go-cmp/cmp"
)

// #region stubs

type edgeFunc func(ctx context.Context, v features.Vector) (edge.Result, error)

func (f edgeFunc) Classify(ctx context.Context, v features.Vector) (edge.Result, error) {
	return f(ctx, v)
}

// hangingEnhancer never returns until released, ignoring its context.
type hangingEnhancer struct{ release chan struct{} }

func (h hangingEnhancer) Capable(enhance.Capability) bool { return true }

func (h hangingEnhancer) Enhance(context.Context, features.Vector, []adaptation.Candidate) ([]adaptation.Candidate, error) {
	<-h.release
	return nil, nil
}

type failingEnhancer struct{}

func (failingEnhancer) Capable(enhance.Capability) bool { return true }

func (failingEnhancer) Enhance(context.Context, features.Vector, []adaptation.Candidate) ([]adaptation.Candidate, error) {
	return nil, errors.New("model table missing")
}

type brokenStore struct{}

func (brokenStore) Load(context.Context, string) (session.State, error) {
	return session.State{}, errors.New("disk on fire")
}

func (brokenStore) Save(context.Context, session.State) error { return errors.New("disk on fire") }

func (brokenStore) Sweep(context.Context, time.Time) (int, error) { return 0, errors.New("disk on fire") }

type countingRecorder struct {
	mu            sync.Mutex
	decisions     []Decision
	stateFailures []StateOp
}

func (r *countingRecorder) ObserveDecision(d Decision) {
	r.mu.Lock()
	r.decisions = append(r.decisions, d)
	r.mu.Unlock()
}

func (r *countingRecorder) ObserveStateFailure(op StateOp) {
	r.mu.Lock()
	r.stateFailures = append(r.stateFailures, op)
	r.mu.Unlock()
}

// saveFailingStore loads from memory but refuses every write.
type saveFailingStore struct {
	*session.MemoryStore
}

func (saveFailingStore) Save(context.Context, session.State) error { return errors.New("read-only") }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// #endregion stubs

// #region helpers

var desktopHigh = SessionContext{Device: behavior.DeviceDesktop, Profile: adaptation.ProfileHigh, EnhancementPermitted: true}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Budget = 60 * time.Millisecond
	cfg.EdgeTimeout = 20 * time.Millisecond
	return cfg
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func typingSession(n, backspaces int, device behavior.DeviceHint) []behavior.Event {
	events := make([]behavior.Event, n)
	for i := range events {
		key := "x"
		if i%3 == 1 && backspaces > 0 {
			key = "Backspace"
			backspaces--
		}
		events[i] = behavior.Event{
			SessionID:  "s1",
			FormID:     "checkout",
			Type:       behavior.EventKeyPress,
			FieldName:  "card_number",
			Timestamp:  int64(i) * 180,
			Payload:    map[string]string{behavior.PayloadKey: key},
			DeviceHint: device,
		}
	}
	return events
}

func assertConflictFree(t *testing.T, cs []adaptation.Candidate) {
	t.Helper()
	seen := map[adaptation.Group]adaptation.Type{}
	for _, c := range cs {
		g := adaptation.GroupOf(c.Type)
		if prev, ok := seen[g]; ok {
			t.Fatalf("conflict group %s holds both %s and %s", g, prev, c.Type)
		}
		seen[g] = c.Type
	}
}

// #endregion helpers

// #region scenarios

func TestDecide_EmptyEvents(t *testing.T) {
	o := New(testConfig(), Deps{})
	d, err := o.Decide(context.Background(), "s-empty", "f", nil, SessionContext{})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(d.Candidates) == 0 {
		t.Fatal("expected default-feature candidates for an empty session")
	}
	if d.FallbackUsed {
		t.Error("empty input is not a degraded decision")
	}
	if d.Tiers[adaptation.TierEdge] != StatusOK {
		t.Errorf("expected edge ok, got %s", d.Tiers[adaptation.TierEdge])
	}
	if d.ID == "" {
		t.Error("expected a decision id")
	}
}

func TestDecide_HighErrorRateDesktop(t *testing.T) {
	o := New(testConfig(), Deps{})
	d, err := o.Decide(context.Background(), "s1", "checkout", typingSession(20, 6, behavior.DeviceDesktop), SessionContext{Profile: adaptation.ProfileMedium})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	var ep *adaptation.Candidate
	for i := range d.Candidates {
		if d.Candidates[i].Type == adaptation.ErrorPrevention {
			ep = &d.Candidates[i]
		}
	}
	if ep == nil {
		t.Fatalf("expected error_prevention admitted, got %+v", d.Candidates)
	}
	if ep.Confidence < 0.5 {
		t.Errorf("expected confidence >= 0.5, got %f", ep.Confidence)
	}
}

func TestDecide_MobileNeverMixesLayoutTypes(t *testing.T) {
	for _, sc := range []SessionContext{
		{Profile: adaptation.ProfileHigh},
		{Profile: adaptation.ProfileHigh, EnhancementPermitted: true},
	} {
		o := New(testConfig(), Deps{Enhancer: enhance.New(enhance.DefaultConfig())})
		d, err := o.Decide(context.Background(), "m1", "f", typingSession(30, 0, behavior.DeviceMobile), sc)
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if d.Admitted(adaptation.FieldReordering) && d.Admitted(adaptation.ProgressiveDisclosure) {
			t.Errorf("mobile decision holds both field_reordering and progressive_disclosure: %+v", d.Candidates)
		}
		assertConflictFree(t, d.Candidates)
	}
}

func TestDecide_SecondCallInsideCooldown(t *testing.T) {
	clock := newClock()
	o := New(testConfig(), Deps{Clock: clock.Now})
	ctx := context.Background()
	events := typingSession(20, 6, behavior.DeviceDesktop)

	first, err := o.Decide(ctx, "s1", "f", events, SessionContext{})
	if err != nil || len(first.Candidates) == 0 {
		t.Fatalf("first decision should admit: err=%v n=%d", err, len(first.Candidates))
	}

	clock.Advance(time.Second)
	second, err := o.Decide(ctx, "s1", "f", events, SessionContext{})
	if err != nil {
		t.Fatalf("second Decide: %v", err)
	}
	if len(second.Candidates) != 0 {
		t.Errorf("expected nothing admitted inside cooldown, got %d", len(second.Candidates))
	}
	if second.Admission != admission.OutcomeCooldown {
		t.Errorf("expected cooldown outcome, got %s", second.Admission)
	}

	clock.Advance(admission.DefaultConfig().CooldownPeriod)
	third, _ := o.Decide(ctx, "s1", "f", events, SessionContext{})
	if len(third.Candidates) == 0 {
		t.Error("expected admission again after the cooldown")
	}
}

func TestDecide_SessionAtCap(t *testing.T) {
	store := session.NewMemoryStore()
	max := admission.DefaultConfig().MaxPerSession
	store.Save(context.Background(), session.State{SessionID: "s1", IssuedCount: max})

	o := New(testConfig(), Deps{Store: store})
	d, err := o.Decide(context.Background(), "s1", "f", typingSession(20, 6, behavior.DeviceDesktop), desktopHigh)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(d.Candidates) != 0 {
		t.Errorf("expected empty admitted list at cap, got %d", len(d.Candidates))
	}
	if d.Admission != admission.OutcomeCapped {
		t.Errorf("expected session_cap outcome, got %s", d.Admission)
	}
	st, _ := store.Load(context.Background(), "s1")
	if st.IssuedCount != max {
		t.Errorf("issued count moved past the cap: %d", st.IssuedCount)
	}
}

// #endregion scenarios

// #region tier-degradation

func TestDecide_EnhancementNeverResolves(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	cfg := testConfig()
	o := New(cfg, Deps{Enhancer: hangingEnhancer{release: release}})

	start := time.Now()
	d, err := o.Decide(context.Background(), "s1", "f", typingSession(20, 6, behavior.DeviceDesktop), desktopHigh)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if elapsed > cfg.Budget+200*time.Millisecond {
		t.Errorf("Decide took %v, budget %v", elapsed, cfg.Budget)
	}
	if d.Tiers[adaptation.TierEnhancement] != StatusTimeout {
		t.Errorf("expected enhancement timeout, got %s", d.Tiers[adaptation.TierEnhancement])
	}
	if d.Tiers[adaptation.TierEdge] != StatusOK || d.Tiers[adaptation.TierFallback] != StatusUnused {
		t.Errorf("edge result should stand alone, got %v", d.Tiers)
	}
	if !d.FallbackUsed {
		t.Error("enhancement non-participation must be flagged")
	}
	if !d.Admitted(adaptation.ErrorPrevention) {
		t.Error("edge candidates should still be admitted")
	}
}

func TestDecide_EnhancementError(t *testing.T) {
	o := New(testConfig(), Deps{Enhancer: failingEnhancer{}})
	d, err := o.Decide(context.Background(), "s1", "f", typingSession(20, 6, behavior.DeviceDesktop), desktopHigh)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Tiers[adaptation.TierEnhancement] != StatusFailed || !d.FallbackUsed {
		t.Errorf("expected failed enhancement with degraded flag, got %v fallback=%v", d.Tiers, d.FallbackUsed)
	}
	if len(d.Candidates) == 0 {
		t.Error("edge-only decision should still admit")
	}
}

func TestDecide_EnhancementSupersedesEdge(t *testing.T) {
	o := New(testConfig(), Deps{Enhancer: enhance.New(enhance.DefaultConfig())})
	d, err := o.Decide(context.Background(), "s1", "f", typingSession(20, 6, behavior.DeviceDesktop), desktopHigh)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Tiers[adaptation.TierEnhancement] != StatusOK {
		t.Fatalf("expected enhancement ok, got %s", d.Tiers[adaptation.TierEnhancement])
	}
	if d.FallbackUsed {
		t.Error("successful enhancement is not degraded")
	}
	for _, c := range d.Candidates {
		if c.Source != adaptation.TierEnhancement && c.Type == adaptation.ErrorPrevention {
			t.Errorf("error_prevention should come from the enhancement tier, got %s", c.Source)
		}
		if c.Source == adaptation.TierEnhancement && len(c.Reasoning) == 0 {
			t.Errorf("%s: enhancement candidate without reasoning", c.ID)
		}
	}
	want := []Stage{StageStart, StageEdgeRunning, StageEnhancementRunning, StageResolving, StageAdmitting, StageDone}
	if diff := cmp.Diff(want, d.Stages); diff != "" {
		t.Errorf("stage trace (-want +got):\n%s", diff)
	}
}

func TestDecide_CapabilityGateSkips(t *testing.T) {
	o := New(testConfig(), Deps{Enhancer: enhance.New(enhance.DefaultConfig())})
	low := SessionContext{Profile: adaptation.ProfileLow, EnhancementPermitted: true}
	d, _ := o.Decide(context.Background(), "s1", "f", typingSession(20, 6, behavior.DeviceDesktop), low)

	if d.Tiers[adaptation.TierEnhancement] != StatusSkipped {
		t.Errorf("expected skipped, got %s", d.Tiers[adaptation.TierEnhancement])
	}
	if d.FallbackUsed {
		t.Error("a capability skip is not degraded")
	}
	want := []Stage{StageStart, StageEdgeRunning, StageEnhancementSkipped, StageResolving, StageAdmitting, StageDone}
	if diff := cmp.Diff(want, d.Stages); diff != "" {
		t.Errorf("stage trace (-want +got):\n%s", diff)
	}
}

func TestDecide_EnhancementRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.EnhancementRate = 0.001
	cfg.EnhancementBurst = 1
	o := New(cfg, Deps{Enhancer: enhance.New(enhance.DefaultConfig())})
	events := typingSession(20, 6, behavior.DeviceDesktop)

	a, _ := o.Decide(context.Background(), "s1", "f", events, desktopHigh)
	b, _ := o.Decide(context.Background(), "s2", "f", events, desktopHigh)
	if a.Tiers[adaptation.TierEnhancement] != StatusOK {
		t.Errorf("first call should use the burst token, got %s", a.Tiers[adaptation.TierEnhancement])
	}
	if b.Tiers[adaptation.TierEnhancement] != StatusSkipped || b.FallbackUsed {
		t.Errorf("second call should be skipped without degradation, got %s fallback=%v",
			b.Tiers[adaptation.TierEnhancement], b.FallbackUsed)
	}
}

func TestDecide_FallbackSeesResolvedDevice(t *testing.T) {
	failing := edgeFunc(func(context.Context, features.Vector) (edge.Result, error) {
		return edge.Result{}, errors.New("bad weights")
	})
	mobileRule := fallback.RuleCandidateID("mobile_device", adaptation.ContextSwitching)
	events := typingSession(12, 0, behavior.DeviceUnknown)

	for _, tt := range []struct {
		device behavior.DeviceHint
		want   bool
	}{
		{behavior.DeviceMobile, true},
		{behavior.DeviceUnknown, false},
	} {
		o := New(testConfig(), Deps{Edge: failing})
		d, err := o.Decide(context.Background(), "s1", "f", events, SessionContext{Device: tt.device, Profile: adaptation.ProfileHigh})
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		seen := false
		for _, c := range d.Candidates {
			seen = seen || c.ID == mobileRule
		}
		for _, s := range d.Suppressed {
			seen = seen || s.ID == mobileRule
		}
		for _, r := range d.Rejected {
			seen = seen || r.ID == mobileRule
		}
		if seen != tt.want {
			t.Errorf("device %s: mobile rule fired=%v, want %v", tt.device, seen, tt.want)
		}
		if events[0].DeviceHint != behavior.DeviceUnknown {
			t.Fatal("input events must not be modified")
		}
	}
}

func TestDecide_EdgeFailureUsesFallback(t *testing.T) {
	tests := []struct {
		name   string
		edge   edgeFunc
		status TierStatus
	}{
		{"error", func(context.Context, features.Vector) (edge.Result, error) {
			return edge.Result{}, errors.New("bad weights")
		}, StatusFailed},
		{"panic", func(context.Context, features.Vector) (edge.Result, error) {
			panic("index out of range")
		}, StatusFailed},
		{"hang", func(ctx context.Context, _ features.Vector) (edge.Result, error) {
			<-ctx.Done()
			return edge.Result{}, ctx.Err()
		}, StatusTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(testConfig(), Deps{Edge: tt.edge, Enhancer: enhance.New(enhance.DefaultConfig())})
			d, err := o.Decide(context.Background(), "s1", "f", typingSession(20, 6, behavior.DeviceMobile), desktopHigh)
			if err != nil {
				t.Fatalf("Decide must not fail on tier errors: %v", err)
			}
			if d.Tiers[adaptation.TierEdge] != tt.status {
				t.Errorf("edge status: got %s, want %s", d.Tiers[adaptation.TierEdge], tt.status)
			}
			if d.Tiers[adaptation.TierFallback] != StatusOK || !d.FallbackUsed {
				t.Errorf("expected fallback-only decision, got %v fallback=%v", d.Tiers, d.FallbackUsed)
			}
			if d.Tiers[adaptation.TierEnhancement] != StatusSkipped {
				t.Errorf("enhancement must not run without edge, got %s", d.Tiers[adaptation.TierEnhancement])
			}
			if len(d.Candidates) == 0 {
				t.Fatal("fallback rules should produce candidates")
			}
			for _, c := range d.Candidates {
				if c.Source != adaptation.TierFallback {
					t.Errorf("expected fallback source, got %s", c.Source)
				}
			}
			assertConflictFree(t, d.Candidates)
		})
	}
}

// #endregion tier-degradation

// #region session-state

func TestDecide_StateUnavailableFails(t *testing.T) {
	rec := &countingRecorder{}
	o := New(testConfig(), Deps{Store: brokenStore{}, Recorder: rec})
	_, err := o.Decide(context.Background(), "s1", "f", nil, SessionContext{})
	if !errors.Is(err, ErrSessionStateUnavailable) {
		t.Fatalf("expected ErrSessionStateUnavailable, got %v", err)
	}
	if diff := cmp.Diff([]StateOp{StateOpLoad}, rec.stateFailures); diff != "" {
		t.Errorf("state failures (-want +got):\n%s", diff)
	}
	if len(rec.decisions) != 0 {
		t.Errorf("no decision should be observed, got %d", len(rec.decisions))
	}
}

func TestDecide_StateSaveFailureIsObserved(t *testing.T) {
	rec := &countingRecorder{}
	o := New(testConfig(), Deps{Store: saveFailingStore{session.NewMemoryStore()}, Recorder: rec})
	_, err := o.Decide(context.Background(), "s1", "f", typingSession(20, 6, behavior.DeviceDesktop), desktopHigh)
	if !errors.Is(err, ErrSessionStateUnavailable) {
		t.Fatalf("expected ErrSessionStateUnavailable, got %v", err)
	}
	if diff := cmp.Diff([]StateOp{StateOpSave}, rec.stateFailures); diff != "" {
		t.Errorf("state failures (-want +got):\n%s", diff)
	}
}

func TestDecide_StateUnavailableDegrades(t *testing.T) {
	cfg := testConfig()
	cfg.OnStateUnavailable = StatePolicyDegrade
	rec := &countingRecorder{}
	o := New(cfg, Deps{Store: brokenStore{}, Recorder: rec})

	for i := 0; i < 2; i++ {
		d, err := o.Decide(context.Background(), "s1", "f", typingSession(20, 6, behavior.DeviceDesktop), SessionContext{})
		if err != nil {
			t.Fatalf("degrade policy must not error: %v", err)
		}
		if !d.FallbackUsed || len(d.Degraded) == 0 {
			t.Error("expected degraded decision")
		}
		// no rate limiting: the second call is not held back by a cooldown
		if len(d.Candidates) == 0 {
			t.Errorf("call %d: expected admitted candidates without rate limits", i)
		}
	}
	loads := 0
	for _, op := range rec.stateFailures {
		if op == StateOpLoad {
			loads++
		}
	}
	if loads != 2 || len(rec.decisions) != 2 {
		t.Errorf("expected 2 load failures and 2 decisions, got %v / %d", rec.stateFailures, len(rec.decisions))
	}
}

// #endregion session-state

// #region properties

func TestDecide_RandomSessionsStayConflictFreeAndCapped(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	clock := newClock()
	o := New(testConfig(), Deps{Clock: clock.Now, Enhancer: enhance.New(enhance.DefaultConfig())})
	kinds := []behavior.EventType{
		behavior.EventMouseMove, behavior.EventClick, behavior.EventKeyPress, behavior.EventFocus,
		behavior.EventScroll, behavior.EventValidationError,
	}
	devices := []behavior.DeviceHint{behavior.DeviceDesktop, behavior.DeviceTablet, behavior.DeviceMobile}
	profiles := []adaptation.Profile{adaptation.ProfileLow, adaptation.ProfileMedium, adaptation.ProfileHigh}
	max := admission.DefaultConfig().MaxPerSession
	issued := map[string]int{}

	for i := 0; i < 60; i++ {
		sid := string(rune('a' + rng.Intn(4)))
		n := rng.Intn(40)
		events := make([]behavior.Event, n)
		for j := range events {
			key := "a"
			if rng.Intn(4) == 0 {
				key = "Backspace"
			}
			events[j] = behavior.Event{
				SessionID:  sid,
				Type:       kinds[rng.Intn(len(kinds))],
				FieldName:  string(rune('p' + rng.Intn(5))),
				Timestamp:  int64(rng.Intn(60000)),
				Payload:    map[string]string{behavior.PayloadKey: key},
				DeviceHint: devices[rng.Intn(len(devices))],
			}
		}
		sc := SessionContext{Profile: profiles[rng.Intn(3)], EnhancementPermitted: rng.Intn(2) == 0}

		d, err := o.Decide(context.Background(), sid, "f", events, sc)
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		assertConflictFree(t, d.Candidates)
		issued[sid] += len(d.Candidates)
		if issued[sid] > max {
			t.Fatalf("session %s issued %d adaptations, cap %d", sid, issued[sid], max)
		}
		clock.Advance(time.Duration(rng.Intn(60)) * time.Second)
	}
}

// #endregion properties

// #region recorder

func TestDecide_RecorderAndLogEntry(t *testing.T) {
	rec := &countingRecorder{}
	o := New(testConfig(), Deps{Recorder: rec})
	d, err := o.Decide(context.Background(), "s1", "checkout", typingSession(20, 6, behavior.DeviceDesktop), SessionContext{})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(rec.decisions) != 1 || rec.decisions[0].ID != d.ID {
		t.Fatalf("recorder should see the decision once, got %d", len(rec.decisions))
	}

	e := d.LogEntry()
	if e.DecisionID != d.ID || e.SessionID != "s1" || e.Admitted != len(d.Candidates) {
		t.Errorf("unexpected log entry %+v", e)
	}
	if e.CandidatesJSON == "" || e.TiersJSON == "" {
		t.Error("expected serialized candidates and tiers")
	}
}

// #endregion recorder
